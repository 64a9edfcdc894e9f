package chat

import (
	"context"
	"strings"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
)

type titleAndRepliesOutput struct {
	ChatTitle    string   `json:"chat_title"`
	QuickReplies []string `json:"quick_replies"`
}

// generateTitleAndReplies refreshes the chat title and the three suggested
// replies from the full updated history. neutralOnly selects the variant for
// chats where only the neutral assistant spoke.
func (o *Orchestrator) generateTitleAndReplies(ctx context.Context, historyStr string, partiesInChat []core.Party, neutralOnly bool) (string, []string, error) {
	name := prompts.TitleReplies
	var data map[string]any
	if neutralOnly {
		name = prompts.TitleRepliesNeutral
	} else {
		data = map[string]any{"PartyList": partyPromptList(partiesInChat)}
	}
	system, err := o.registry.Render(name, "", data)
	if err != nil {
		return "", nil, err
	}
	user, err := o.registry.Render(prompts.TitleRepliesUser, "", map[string]any{
		"ConversationHistory": historyStr,
	})
	if err != nil {
		return "", nil, err
	}

	var out titleAndRepliesOutput
	messages := []core.Message{core.SystemMessage(system), core.UserMessage(user)}
	if err := o.router.GenerateObject(ctx, o.utilityPool, messages, &out); err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(out.ChatTitle), out.QuickReplies, nil
}
