package core

import "testing"

func TestHistoryString(t *testing.T) {
	parties := []Party{{ID: "spd", Name: "SPD"}}
	history := []Message{
		UserMessage("Wie steht die SPD zum Klimaschutz?"),
		AssistantMessage("spd", "Die SPD setzt auf erneuerbare Energien."),
		AssistantMessage("unknown", "Hallo."),
	}

	got := HistoryString(history, parties)
	want := "1. Nutzer: \"Wie steht die SPD zum Klimaschutz?\"\n" +
		"2. SPD: \"Die SPD setzt auf erneuerbare Energien.\"\n" +
		"3. wahl.chat: \"Hallo.\"\n"
	if got != want {
		t.Fatalf("HistoryString mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestHistoryStringDeterministic(t *testing.T) {
	history := []Message{UserMessage("a"), AssistantMessage("spd", "b")}
	parties := []Party{{ID: "spd", Name: "SPD"}}
	if HistoryString(history, parties) != HistoryString(history, parties) {
		t.Fatal("identical history rendered differently")
	}
}

func TestCountUserMessages(t *testing.T) {
	history := []Message{
		UserMessage("eins"),
		AssistantMessage("spd", "antwort"),
		UserMessage("zwei"),
	}
	if got := CountUserMessages(history); got != 2 {
		t.Fatalf("CountUserMessages = %d, want 2", got)
	}
}

func TestSanitizeReferences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Klimaschutz ist wichtig [1, 2].", "Klimaschutz ist wichtig [1, 2]."},
		{"Siehe [Quelle 3].", "Siehe [ 3]."},
		{"Ohne Referenzen.", "Ohne Referenzen."},
	}
	for _, tc := range cases {
		if got := SanitizeReferences(tc.in); got != tc.want {
			t.Errorf("SanitizeReferences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEvidenceContextEmpty(t *testing.T) {
	if got := EvidenceContext(nil); got != NoEvidenceMarker {
		t.Fatalf("empty evidence rendered %q, want the no-evidence marker", got)
	}
}
