package core

import (
	"fmt"
	"regexp"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Assistant messages carry the id of
// the party that authored them; user messages leave PartyID empty.
type Message struct {
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	PartyID      string         `json:"party_id,omitempty"`
	Sources      []EvidenceItem `json:"sources,omitempty"`
	QuickReplies []string       `json:"quick_replies,omitempty"`
	RAGQueries   []string       `json:"rag_query,omitempty"`
}

// SystemMessage creates a system instruction message. System messages are
// sent to backends but never stored in session history.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user-authored message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a party-authored message.
func AssistantMessage(partyID, content string) Message {
	return Message{Role: RoleAssistant, Content: content, PartyID: partyID}
}

// HistoryString renders a conversation as the numbered transcript used in
// prompts and as cache-fingerprint input. User messages are attributed to
// "Nutzer", assistant messages to the short name of the sending party, or to
// the neutral assistant when the party is unknown.
func HistoryString(history []Message, parties []Party) string {
	var b strings.Builder
	for i, msg := range history {
		sender := "Nutzer"
		if msg.Role == RoleAssistant {
			sender = NeutralParty.Name
			for _, party := range parties {
				if party.ID == msg.PartyID {
					sender = party.Name
					break
				}
			}
		}
		fmt.Fprintf(&b, "%d. %s: %q\n", i+1, sender, msg.Content)
	}
	return b.String()
}

// CountUserMessages reports how many turns in the history are user-authored.
func CountUserMessages(history []Message) int {
	n := 0
	for _, msg := range history {
		if msg.Role == RoleUser {
			n++
		}
	}
	return n
}

var citationPattern = regexp.MustCompile(`\[(.*?)\]`)

var nonCitationChars = regexp.MustCompile(`[^0-9, ]`)

// SanitizeReferences normalizes model citation markers. Small models
// occasionally emit [id1] or [<1>] instead of [1]; everything but digits,
// commas and spaces is stripped from the bracket content.
func SanitizeReferences(text string) string {
	return citationPattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := citationPattern.FindStringSubmatch(match)[1]
		return "[" + nonCitationChars.ReplaceAllString(inner, "") + "]"
	})
}
