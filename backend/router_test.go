package backend

import (
	"context"
	"testing"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

type fakeClient struct {
	text  string
	obj   string
	err   error
	calls int
}

func (f *fakeClient) GenerateText(ctx context.Context, messages []core.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeClient) GenerateObject(ctx context.Context, messages []core.Message) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.obj), nil
}

func (f *fakeClient) StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := core.NewStream(ctx, 1)
	s.Close()
	return s, nil
}

type countingSignal struct {
	hits int
}

func (c *countingSignal) RateLimitHit(ctx context.Context) error {
	c.hits++
	return nil
}

func descriptor(name string, priority int, client Client) *Descriptor {
	return &Descriptor{Name: name, Client: client, Sizes: []Size{SizeSmall}, Priority: priority}
}

func TestGenerateTextFailsOver(t *testing.T) {
	broken := &fakeClient{err: core.NewError(core.ErrBackend, "rate limited")}
	healthy := &fakeClient{text: "hallo"}
	pool := NewPool(
		descriptor("broken", 10, broken),
		descriptor("healthy", 1, healthy),
	)

	router := NewRouter()
	text, err := router.GenerateText(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "hallo" {
		t.Fatalf("text = %q, want %q", text, "hallo")
	}
	if broken.calls != 1 || healthy.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", broken.calls, healthy.calls)
	}
	if !pool.Backends()[0].RateLimited() {
		t.Fatal("failed backend should be flagged rate-limited")
	}
	if pool.Backends()[1].RateLimited() {
		t.Fatal("successful backend should not be flagged")
	}
}

func TestSuccessClearsRateLimitFlag(t *testing.T) {
	d := descriptor("recovered", 1, &fakeClient{text: "ok"})
	d.setRateLimited(true)
	pool := NewPool(d)

	if _, err := NewRouter().GenerateText(context.Background(), pool, nil); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if d.RateLimited() {
		t.Fatal("success must clear the rate-limit flag")
	}
}

func TestExhaustionSignalsOnceAndTriesBackup(t *testing.T) {
	primary := &fakeClient{err: core.NewError(core.ErrBackend, "down")}
	backup := &fakeClient{text: "rettung"}

	backupDesc := descriptor("backup", 1, backup)
	backupDesc.BackupOnly = true
	pool := NewPool(descriptor("primary", 10, primary), backupDesc)

	signal := &countingSignal{}
	router := NewRouter(WithStatusSignal(signal))
	text, err := router.GenerateText(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "rettung" {
		t.Fatalf("text = %q, want backup answer", text)
	}
	if signal.hits != 1 {
		t.Fatalf("signal fired %d times, want 1", signal.hits)
	}
	if backup.calls != 1 {
		t.Fatalf("backup calls = %d, want 1", backup.calls)
	}
}

func TestAllBackendsExhausted(t *testing.T) {
	pool := NewPool(
		descriptor("a", 2, &fakeClient{err: core.NewError(core.ErrBackend, "down")}),
		descriptor("b", 1, &fakeClient{err: core.NewError(core.ErrBackend, "down")}),
	)

	signal := &countingSignal{}
	_, err := NewRouter(WithStatusSignal(signal)).GenerateText(context.Background(), pool, nil)
	if !core.IsBackendExhausted(err) {
		t.Fatalf("err = %v, want backend exhaustion", err)
	}
	if signal.hits != 1 {
		t.Fatalf("signal fired %d times, want 1", signal.hits)
	}
}

func TestContentPolicyDoesNotFailOver(t *testing.T) {
	refused := &fakeClient{err: core.NewError(core.ErrContentPolicy, "filtered")}
	sibling := &fakeClient{text: "never"}
	pool := NewPool(
		descriptor("refused", 10, refused),
		descriptor("sibling", 1, sibling),
	)

	signal := &countingSignal{}
	_, err := NewRouter(WithStatusSignal(signal)).GenerateText(context.Background(), pool, nil)
	if !core.IsContentPolicy(err) {
		t.Fatalf("err = %v, want content policy", err)
	}
	if sibling.calls != 0 {
		t.Fatal("content policy rejection must not try the next backend")
	}
	if signal.hits != 0 {
		t.Fatal("content policy rejection must not signal exhaustion")
	}
	if pool.Backends()[0].RateLimited() {
		t.Fatal("content policy rejection must not flag the backend")
	}
}

func TestGenerateObjectRetriesOnDecodeFailure(t *testing.T) {
	garbled := &fakeClient{obj: "not json"}
	valid := &fakeClient{obj: `{"value": 7}`}
	pool := NewPool(
		descriptor("garbled", 10, garbled),
		descriptor("valid", 1, valid),
	)

	var out struct {
		Value int `json:"value"`
	}
	if err := NewRouter().GenerateObject(context.Background(), pool, nil, &out); err != nil {
		t.Fatalf("GenerateObject: %v", err)
	}
	if out.Value != 7 {
		t.Fatalf("value = %d, want 7", out.Value)
	}
	if valid.calls != 1 {
		t.Fatal("decode failure should fail over to the next backend")
	}
}

func TestStreamTextOpenIsSuccess(t *testing.T) {
	broken := &fakeClient{err: core.NewError(core.ErrBackend, "down")}
	healthy := &fakeClient{}
	pool := NewPool(
		descriptor("broken", 10, broken),
		descriptor("healthy", 1, healthy),
	)

	stream, err := NewRouter().StreamText(context.Background(), pool, nil, SizeSmall, false)
	if err != nil {
		t.Fatalf("StreamText: %v", err)
	}
	if stream == nil {
		t.Fatal("expected an open stream")
	}
	if healthy.calls != 1 {
		t.Fatalf("healthy calls = %d, want 1", healthy.calls)
	}
}

func TestCancelledContextStopsFailover(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	untouched := &fakeClient{text: "never"}
	pool := NewPool(descriptor("untouched", 1, untouched))

	_, err := NewRouter().GenerateText(ctx, pool, nil)
	if err == nil {
		t.Fatal("expected an error from the cancelled context")
	}
	if untouched.calls != 0 {
		t.Fatal("cancelled context must not invoke backends")
	}
}
