package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
)

// classification is the outcome of the target/intent step: who answers, the
// question each party is asked, and whether the turn is an explicit
// comparison.
type classification struct {
	PartyIDs  []string
	Question  string
	Comparing bool
}

type targetListOutput struct {
	PartyIDList []string `json:"party_id_list"`
}

type questionTypeOutput struct {
	NonPartySpecificQuestion string `json:"non_party_specific_question"`
	IsComparingQuestion      bool   `json:"is_comparing_question"`
}

// classifyMessage determines the responding parties and question type. On the
// first turn the history is empty, so a synthetic opener names the invited
// parties and the message is prefixed with their names to anchor the model.
func (o *Orchestrator) classifyMessage(ctx context.Context, userMessage, historyStr string, preSelected []core.Party) (classification, error) {
	if len(preSelected) == 0 {
		preSelected = []core.Party{core.NeutralParty}
	}

	messageForTargets := userMessage
	if historyStr == "" {
		names := partyNames(preSelected)
		historyStr = fmt.Sprintf("Chat mit %s gestartet.\n", names)
		if !(len(preSelected) == 1 && preSelected[0].IsNeutral()) {
			messageForTargets = fmt.Sprintf("@%s: %s", names, userMessage)
		}
	}

	system, err := o.registry.Render(prompts.ClassifyTargets, "", map[string]any{
		"CurrentPartyList":    partyPromptList(preSelected),
		"AdditionalPartyList": o.additionalPartyList(preSelected),
	})
	if err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}
	user, err := o.registry.Render(prompts.ClassifyTargetsUser, "", map[string]any{
		"PreviousChatHistory": historyStr,
		"UserMessage":         messageForTargets,
	})
	if err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}

	var targets targetListOutput
	messages := []core.Message{core.SystemMessage(system), core.UserMessage(user)}
	if err := o.router.GenerateObject(ctx, o.utilityPool, messages, &targets); err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}

	partyIDs := dedup(targets.PartyIDList)
	if len(partyIDs) >= 2 {
		partyIDs = withoutNeutral(partyIDs)
	}

	result := classification{PartyIDs: partyIDs, Question: userMessage}
	if len(partyIDs) < 2 {
		return result, nil
	}

	typeSystem, err := o.registry.Render(prompts.ClassifyQuestionType, "", nil)
	if err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}
	typeUser, err := o.registry.Render(prompts.ClassifyQuestionUser, "", map[string]any{
		"PreviousChatHistory": historyStr,
		"UserMessage":         fmt.Sprintf("Nutzer: %q", messageForTargets),
	})
	if err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}

	var questionType questionTypeOutput
	messages = []core.Message{core.SystemMessage(typeSystem), core.UserMessage(typeUser)}
	if err := o.router.GenerateObject(ctx, o.utilityPool, messages, &questionType); err != nil {
		return classification{}, core.WrapError(err, core.ErrClassification)
	}

	if questionType.NonPartySpecificQuestion != "" {
		result.Question = questionType.NonPartySpecificQuestion
	}
	result.Comparing = questionType.IsComparingQuestion
	return result, nil
}

// additionalPartyList renders the parties not yet in the chat, big parties
// first so the model only picks small ones when asked explicitly.
func (o *Orchestrator) additionalPartyList(preSelected []core.Party) string {
	selected := map[string]bool{}
	for _, party := range preSelected {
		selected[party.ID] = true
	}
	var big, small strings.Builder
	for _, party := range o.directory.Parties() {
		if selected[party.ID] {
			continue
		}
		if party.IsSmallParty {
			small.WriteString(party.PromptString())
		} else {
			big.WriteString(party.PromptString())
		}
	}
	return "Große Parteien:\n" + big.String() + "Kleinparteien:\n" + small.String()
}

func partyPromptList(parties []core.Party) string {
	var b strings.Builder
	for _, party := range parties {
		b.WriteString(party.PromptString())
	}
	return b.String()
}

func partyNames(parties []core.Party) string {
	names := make([]string, len(parties))
	for i, party := range parties {
		names[i] = party.Name
	}
	return strings.Join(names, ", ")
}

func dedup(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func withoutNeutral(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != core.NeutralParty.ID {
			out = append(out, id)
		}
	}
	return out
}
