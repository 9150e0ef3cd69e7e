package interaction

import (
	"time"

	"github.com/coredesk/llmcore/pkg/models"
)

// AddUserContent implements spec §4.1's addUserContent: if the trailing
// message is a user message, part is appended into its content; otherwise
// a new user message is created. It returns the affected message's id.
func (i *Interaction) AddUserContent(parts ...models.ContentPart) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.addUserContentLocked(parts...)
}

func (i *Interaction) addUserContentLocked(parts ...models.ContentPart) string {
	if n := len(i.messages); n > 0 && i.messages[n-1].Role == models.RoleUser {
		last := &i.messages[n-1]
		last.Content = append(last.Content, parts...)
		return last.ID
	}
	msg := models.Message{
		ID:        models.NewMessageID(),
		Role:      models.RoleUser,
		Content:   parts,
		CreatedAt: time.Now(),
	}
	i.messages = append(i.messages, msg)
	return msg.ID
}

// appendAssistantLocked implements spec §4.1's addAssistantContent: it
// appends a new assistant message carrying parts and the ProviderResponse
// snapshot that produced them. Two consecutive assistant messages never
// happen in a well-formed exchange; if it does, a diagnostic is logged
// but the message is appended anyway rather than silently merged (spec:
// "assistant-after-assistant is a bug signaled in logs"). Callers must
// hold i.mu.
func (i *Interaction) appendAssistantLocked(parts []models.ContentPart, resp *models.ProviderResponse) string {
	if n := len(i.messages); n > 0 && i.messages[n-1].Role == models.RoleAssistant {
		i.log.Warn("interaction: consecutive assistant messages appended, exchange is malformed",
			"interaction_id", i.ID)
	}

	turn := i.acct.turn
	msg := models.Message{
		ID:               models.NewMessageID(),
		Role:             models.RoleAssistant,
		Content:          parts,
		CreatedAt:        time.Now(),
		ProviderResponse: resp,
		StatsSnapshot:    &turn,
	}
	i.messages = append(i.messages, msg)
	return msg.ID
}

// AddToolResult implements spec §4.1's addToolResult: the result is
// always merged into the trailing user message (creating one if
// necessary). If a tool_result part with a matching toolUseID already
// exists there, its content is appended and IsError is OR'd in; otherwise
// a new tool_result part is appended. When isError, a trailing text block
// describing the failure is added to the result content.
func (i *Interaction) AddToolResult(toolUseID string, content []models.ContentPart, isError bool) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if isError {
		content = append(append([]models.ContentPart(nil), content...), models.TextPart("The tool run failed: see tool_result content above."))
	}

	if n := len(i.messages); n == 0 || i.messages[n-1].Role != models.RoleUser {
		return i.addUserContentLocked(models.ToolResultPart(toolUseID, content, isError))
	}

	last := &i.messages[len(i.messages)-1]
	for idx := range last.Content {
		part := &last.Content[idx]
		if part.Type == models.ContentToolResult && part.ToolResultForID == toolUseID {
			part.ToolResultParts = append(part.ToolResultParts, content...)
			part.IsError = part.IsError || isError
			return last.ID
		}
	}
	last.Content = append(last.Content, models.ToolResultPart(toolUseID, content, isError))
	return last.ID
}
