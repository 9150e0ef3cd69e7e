package transport

import (
	"github.com/coredesk/llmcore/pkg/models"
)

// NormalizeAnswer computes resp.Answer and resp.ToolUses[i].ToolThinking
// from resp.AnswerContent (spec §4.3 "Response normalization").
//
// If the response is tool-bearing, any text immediately preceding a
// tool_use part is accumulated as that tool's toolThinking; if the final
// content part is text and at least one tool_use preceded it, that
// trailing text is appended to the last tool's toolThinking instead of
// being treated as the answer. Answer becomes the concatenation of every
// tool's toolThinking.
//
// Otherwise Answer is the concatenation of all text parts. If
// AnswerContent has no content at all, a placeholder error text part is
// synthesized and the response is marked accordingly via the returned ok
// flag (false means synthesis happened and a caller should log it).
func NormalizeAnswer(resp *models.ProviderResponse) (ok bool) {
	if len(resp.AnswerContent) == 0 {
		resp.AnswerContent = []models.ContentPart{models.TextPart("Error: No valid text content found")}
		resp.Answer = resp.AnswerContent[0].Text
		return false
	}

	if resp.IsTool {
		normalizeToolAnswer(resp)
		return true
	}

	resp.Answer = bestEffortText(resp.AnswerContent)
	return true
}

func normalizeToolAnswer(resp *models.ProviderResponse) {
	toolIndexByID := make(map[string]int, len(resp.ToolUses))
	for i, tu := range resp.ToolUses {
		toolIndexByID[tu.ToolUseID] = i
	}

	var pendingText string
	lastToolIdx := -1
	for _, part := range resp.AnswerContent {
		switch part.Type {
		case models.ContentText:
			pendingText += part.Text
		case models.ContentToolUse:
			if idx, ok := toolIndexByID[part.ToolUseID]; ok {
				resp.ToolUses[idx].ToolThinking += pendingText
				pendingText = ""
				lastToolIdx = idx
			}
		}
	}
	// Trailing text after the last tool_use belongs to that tool's
	// toolThinking, not to a separate answer (spec §4.3).
	if pendingText != "" && lastToolIdx >= 0 {
		resp.ToolUses[lastToolIdx].ToolThinking += pendingText
	}

	var answer string
	for _, tu := range resp.ToolUses {
		answer += tu.ToolThinking
	}
	resp.Answer = answer
}

// bestEffortText concatenates text parts, falling back to a readable
// rendering of tool_use input when no text part is present at all.
func bestEffortText(parts []models.ContentPart) string {
	if models.ConcatText(parts) != "" {
		return models.ConcatText(parts)
	}
	for _, p := range parts {
		if p.Type == models.ContentToolUse && len(p.ToolInput) > 0 {
			return string(p.ToolInput)
		}
	}
	return ""
}
