package chat

import (
	"context"
	"strings"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
)

// rewriteQuery turns the user's question into a retrieval query for the
// party's document namespace.
func (o *Orchestrator) rewriteQuery(ctx context.Context, party core.Party, historyStr, question string) (string, error) {
	name := prompts.RewriteQuery
	data := map[string]any{"PartyName": party.Name}
	if party.IsNeutral() {
		name = prompts.RewriteQueryNeutral
		data = nil
	}
	system, err := o.registry.Render(name, "", data)
	if err != nil {
		return "", err
	}
	user, err := o.registry.Render(prompts.RewriteUser, "", map[string]any{
		"ConversationHistory": historyStr,
		"LastUserMessage":     question,
	})
	if err != nil {
		return "", err
	}

	messages := []core.Message{core.SystemMessage(system), core.UserMessage(user)}
	query, err := o.router.GenerateText(ctx, o.utilityPool, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(query), nil
}
