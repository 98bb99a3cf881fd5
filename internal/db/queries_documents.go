package db

import (
	"context"
	"fmt"
)

const documentColumns = `d.id, d.project_id, p.name, d.name, d.file_path, d.uploader_id, d.uploaded_at
	FROM project_documents d JOIN projects p ON p.id = d.project_id`

// CreateDocument records an uploaded project document and returns its ID.
func (s *Session) CreateDocument(ctx context.Context, projectID, uploaderID int64, name, filePath string) (int64, error) {
	id, err := s.insert(ctx,
		"INSERT INTO project_documents (project_id, name, file_path, uploader_id) VALUES (?, ?, ?, ?)",
		projectID, name, filePath, uploaderID,
	)
	if err != nil {
		return 0, fmt.Errorf("creating document: %w", err)
	}
	return id, nil
}

// DocumentsForProject lists a project's documents, newest first.
func (s *Session) DocumentsForProject(ctx context.Context, projectID int64) ([]Document, error) {
	return s.scanDocuments(ctx,
		"SELECT "+documentColumns+" WHERE d.project_id = ? ORDER BY d.uploaded_at DESC, d.id DESC",
		projectID)
}

// DocumentsByUploader lists documents uploaded by the user, newest first.
func (s *Session) DocumentsByUploader(ctx context.Context, userID int64) ([]Document, error) {
	return s.scanDocuments(ctx,
		"SELECT "+documentColumns+" WHERE d.uploader_id = ? ORDER BY d.uploaded_at DESC, d.id DESC",
		userID)
}

// RecentDocuments lists the most recently uploaded documents.
func (s *Session) RecentDocuments(ctx context.Context, limit int) ([]Document, error) {
	return s.scanDocuments(ctx,
		"SELECT "+documentColumns+" ORDER BY d.uploaded_at DESC, d.id DESC LIMIT ?",
		limit)
}

func (s *Session) scanDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.ProjectName, &d.Name, &d.FilePath, &d.UploaderID, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
