package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
)

const recentDocumentLimit = 10

var docProjectRe = regexp.MustCompile(`(?i)\b(?:documents?|docs|files)\s+(?:for|in|of|on|from)\s+(?:the\s+)?(?:project\s+)?(.+?)\s*\??$`)

// Documents answers questions about project documents: the asker's uploads,
// a named project's documents, or the most recent uploads.
func (t *DataTools) Documents(ctx context.Context, text string, userID int64) (string, error) {
	q := strings.ToLower(text)

	return t.withSession(ctx, "tools.documents", func(s *db.Session) (string, error) {
		if personal(q) {
			if userID == 0 {
				return "", missingUser("tools.documents", "documents")
			}
			docs, err := s.DocumentsByUploader(ctx, userID)
			if err != nil {
				return "", err
			}
			return formatDocuments(docs, "You haven't uploaded any documents."), nil
		}

		if name := capture(docProjectRe, text); name != "" {
			p, err := s.FindProjectByName(ctx, name)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Sprintf("I couldn't find a project named %s.", name), nil
			}
			if err != nil {
				return "", err
			}
			docs, err := s.DocumentsForProject(ctx, p.ID)
			if err != nil {
				return "", err
			}
			return formatDocuments(docs, fmt.Sprintf("%s has no documents yet.", p.Name)), nil
		}

		docs, err := s.RecentDocuments(ctx, recentDocumentLimit)
		if err != nil {
			return "", err
		}
		return formatDocuments(docs, "No documents have been uploaded yet."), nil
	})
}

func formatDocuments(docs []db.Document, empty string) string {
	if len(docs) == 0 {
		return empty
	}
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = fmt.Sprintf("%s (%s) - %s", d.Name, d.ProjectName, d.FilePath)
	}
	return strings.Join(lines, "\n")
}
