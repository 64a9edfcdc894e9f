package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

type fakeSearcher struct {
	docs []core.EvidenceItem
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, query, namespace string, topK int, minScore float64) ([]core.EvidenceItem, error) {
	return f.docs, f.err
}

type fakeReranker struct {
	indices []int
	err     error
	calls   int
}

func (f *fakeReranker) Rerank(ctx context.Context, history, userMessage string, docs []core.EvidenceItem) ([]int, error) {
	f.calls++
	return f.indices, f.err
}

func docs(contents ...string) []core.EvidenceItem {
	out := make([]core.EvidenceItem, len(contents))
	for i, c := range contents {
		out[i] = core.EvidenceItem{Content: c, Score: float64(len(contents) - i)}
	}
	return out
}

func contents(items []core.EvidenceItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Content
	}
	return out
}

func TestResolveEmptyResult(t *testing.T) {
	r := NewResolver(&fakeSearcher{})
	got, err := r.Resolve(context.Background(), "Rente", "spd", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %v, want nil", got)
	}
}

func TestResolveSearchError(t *testing.T) {
	r := NewResolver(&fakeSearcher{err: errors.New("index offline")})
	if _, err := r.Resolve(context.Background(), "Rente", "spd", "", ""); err == nil {
		t.Fatal("expected a search error")
	}
}

func TestResolveSortsBySimilarity(t *testing.T) {
	searcher := &fakeSearcher{docs: []core.EvidenceItem{
		{Content: "mittel", Score: 0.6},
		{Content: "beste", Score: 0.9},
		{Content: "schwach", Score: 0.5},
	}}
	r := NewResolver(searcher)
	got, err := r.Resolve(context.Background(), "q", "spd", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"beste", "mittel", "schwach"}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("order = %v, want %v", contents(got), want)
		}
	}
}

func TestResolveSkipsRerankBelowThreshold(t *testing.T) {
	reranker := &fakeReranker{}
	r := NewResolver(&fakeSearcher{docs: docs("a", "b", "c", "d")}, WithReranker(reranker))

	got, err := r.Resolve(context.Background(), "q", "spd", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reranker.calls != 0 {
		t.Fatal("reranker must not run on fewer candidates than the result cap")
	}
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestResolveRerankReordersAndClips(t *testing.T) {
	reranker := &fakeReranker{indices: []int{4, 2, 0, 1, 3, 5}}
	r := NewResolver(&fakeSearcher{docs: docs("a", "b", "c", "d", "e", "f")}, WithReranker(reranker))

	got, err := r.Resolve(context.Background(), "q", "spd", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"e", "c", "a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("order = %v, want %v", contents(got), want)
		}
	}
}

func TestResolveRerankFailureKeepsSimilarityOrder(t *testing.T) {
	reranker := &fakeReranker{err: errors.New("model offline")}
	r := NewResolver(&fakeSearcher{docs: docs("a", "b", "c", "d", "e", "f")}, WithReranker(reranker))

	got, err := r.Resolve(context.Background(), "q", "spd", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"a", "b", "c", "d", "e"}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("order = %v, want %v", contents(got), want)
		}
	}
}
