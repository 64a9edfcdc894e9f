package core

import (
	"fmt"
	"strings"
)

// NoEvidenceMarker substitutes for an empty evidence set when building prompt
// context, so the model is told explicitly that retrieval found nothing.
const NoEvidenceMarker = "Keine relevanten Informationen in der Dokumentensammlung gefunden."

// EvidenceItem is one retrieved context snippet with its source metadata.
// Content and Score feed prompt construction and ranking; they are not part
// of the wire representation sent to clients.
type EvidenceItem struct {
	DocumentName   string  `json:"source,omitempty"`
	Page           int     `json:"page,omitempty"`
	PublishDate    string  `json:"document_publish_date,omitempty"`
	URL            string  `json:"url,omitempty"`
	SourceDocument string  `json:"source_document,omitempty"`
	PartyID        string  `json:"party_id,omitempty"`
	Content        string  `json:"-"`
	Score          float64 `json:"-"`
}

// EvidenceContext renders evidence items as the numbered context block a
// single party's answer is grounded on.
func EvidenceContext(items []EvidenceItem) string {
	if len(items) == 0 {
		return NoEvidenceMarker
	}
	var b strings.Builder
	for i, item := range items {
		writeEvidenceBlock(&b, i, item)
	}
	return b.String()
}

// ComparisonEvidenceContext renders per-party evidence for comparison turns,
// grouped by party with ids numbered continuously across groups.
func ComparisonEvidenceContext(byParty map[string][]EvidenceItem, parties []Party) string {
	var b strings.Builder
	num := 0
	for _, party := range parties {
		fmt.Fprintf(&b, "\n\nInformationen von %s:\n", party.Name)
		for _, item := range byParty[party.ID] {
			writeEvidenceBlock(&b, num, item)
			num++
		}
	}
	if b.Len() == 0 {
		return NoEvidenceMarker
	}
	return b.String()
}

func writeEvidenceBlock(b *strings.Builder, num int, item EvidenceItem) {
	name := item.DocumentName
	if name == "" {
		name = "unbekannt"
	}
	date := item.PublishDate
	if date == "" {
		date = "unbekannt"
	}
	fmt.Fprintf(b, "ID: %d\n", num)
	fmt.Fprintf(b, "- Dokumentname: %s\n", name)
	fmt.Fprintf(b, "- Veröffentlichungsdatum: %s\n", date)
	fmt.Fprintf(b, "- Inhalt: %q\n\n", item.Content)
}
