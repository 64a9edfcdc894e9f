package chat

import "github.com/wahl-chat/wahl-chat-backend/core"

// GroupQuestionsKey holds proposed questions shared by every party.
const GroupQuestionsKey = "group"

// Directory looks up the configured parties and their proposed questions.
type Directory interface {
	Parties() []core.Party
	PartyByID(id string) (core.Party, bool)
	ProposedQuestions(partyID string) []string
}

// StaticDirectory serves a fixed party list loaded at startup.
type StaticDirectory struct {
	parties   []core.Party
	questions map[string][]string
}

// NewStaticDirectory builds a directory from configuration. The neutral
// assistant is always resolvable, whether or not it appears in parties.
func NewStaticDirectory(parties []core.Party, questions map[string][]string) *StaticDirectory {
	return &StaticDirectory{parties: parties, questions: questions}
}

func (d *StaticDirectory) Parties() []core.Party {
	out := make([]core.Party, len(d.parties))
	copy(out, d.parties)
	return out
}

func (d *StaticDirectory) PartyByID(id string) (core.Party, bool) {
	if id == core.NeutralParty.ID {
		return core.NeutralParty, true
	}
	for _, party := range d.parties {
		if party.ID == id {
			return party, true
		}
	}
	return core.Party{}, false
}

func (d *StaticDirectory) ProposedQuestions(partyID string) []string {
	return d.questions[partyID]
}
