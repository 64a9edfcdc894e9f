package core

import (
	"fmt"
	"strings"
)

// Party is a response provider: a political party, or the neutral wahl.chat
// assistant represented by NeutralParty.
type Party struct {
	ID           string `json:"party_id" yaml:"party_id"`
	Name         string `json:"name" yaml:"name"`
	LongName     string `json:"long_name" yaml:"long_name"`
	Description  string `json:"description" yaml:"description"`
	WebsiteURL   string `json:"website_url" yaml:"website_url"`
	Candidate    string `json:"candidate" yaml:"candidate"`
	ManifestoURL string `json:"election_manifesto_url" yaml:"election_manifesto_url"`
	IsSmallParty bool   `json:"is_small_party" yaml:"is_small_party"`
	InParliament bool   `json:"is_already_in_parliament" yaml:"is_already_in_parliament"`
}

// NeutralParty answers general questions and speaks for comparison turns.
var NeutralParty = Party{
	ID:       "wahl-chat",
	Name:     "wahl.chat",
	LongName: "wahl.chat Assistent",
	Description: "Der wahl.chat Assistent kann allgemeine Fragen zur Bundestagswahl, " +
		"zum Wahlsystem und zur Anwendung wahl.chat beantworten. Falls Parteien " +
		"miteinander verglichen werden, ist er neutral und gibt einen quellenbasierten Überblick.",
	WebsiteURL: "https://wahl.chat",
	Candidate:  "Wahl Chat",
}

// IsNeutral reports whether the party is the neutral assistant.
func (p Party) IsNeutral() bool { return p.ID == NeutralParty.ID }

// PromptString renders the party description block used in classification
// prompts.
func (p Party) PromptString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", p.ID)
	fmt.Fprintf(&b, "- Abkürzung: %s\n", p.Name)
	fmt.Fprintf(&b, "- Langform: %s\n", p.LongName)
	fmt.Fprintf(&b, "- Beschreibung: %s\n", p.Description)
	fmt.Fprintf(&b, "- Spitzenkandidat*In: %s\n", p.Candidate)
	fmt.Fprintf(&b, "- Ist im aktuellen Bundestag vertreten: %t\n", p.InParliament)
	return b.String()
}

// FindParty looks up a party by id.
func FindParty(parties []Party, id string) (Party, bool) {
	for _, party := range parties {
		if party.ID == id {
			return party, true
		}
	}
	return Party{}, false
}
