package llm

// TrimMessages trims a message history to fit within a token budget.
//
// Messages are grouped into exchanges (a user message plus the assistant reply
// that follows it). The newest exchange is always kept; older exchanges are
// dropped first until the total fits. An exchange is never split.
func TrimMessages(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}

	groups := groupMessages(messages)

	total := 0
	for _, g := range groups {
		total += g.tokens
	}

	if total <= maxTokens {
		return messages
	}

	kept := total
	dropUntil := 0
	for dropUntil < len(groups)-1 && kept > maxTokens {
		kept -= groups[dropUntil].tokens
		dropUntil++
	}

	var trimmed []Message
	for _, g := range groups[dropUntil:] {
		trimmed = append(trimmed, g.messages...)
	}
	return trimmed
}

type messageGroup struct {
	messages []Message
	tokens   int
}

// groupMessages pairs each user message with the assistant message right after it.
// Unpaired messages form their own group.
func groupMessages(messages []Message) []messageGroup {
	var groups []messageGroup
	i := 0
	for i < len(messages) {
		g := messageGroup{messages: []Message{messages[i]}, tokens: EstimateMessageTokens(messages[i])}
		if messages[i].Role == "user" && i+1 < len(messages) && messages[i+1].Role == "assistant" {
			g.messages = append(g.messages, messages[i+1])
			g.tokens += EstimateMessageTokens(messages[i+1])
			i++
		}
		groups = append(groups, g)
		i++
	}
	return groups
}
