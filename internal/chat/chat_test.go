package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/rag"
)

type fakeProvider struct {
	out    string
	deltas []string
	err    error
	last   llm.Request
}

func (f *fakeProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.out, f.err
}

func (f *fakeProvider) Stream(_ context.Context, req llm.Request, onDelta func(string) error) error {
	f.last = req
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeProvider) IsConfigured() bool { return true }

type fakeRetriever []rag.Chunk

func (f fakeRetriever) Retrieve(context.Context, string, int) []rag.Chunk { return f }

func TestAskUsesCourseContext(t *testing.T) {
	p := &fakeProvider{out: "  A p-value is...  "}
	svc := New(p, fakeRetriever{{Content: "Lecture 4: p-values"}}, 400, 5, 0, nil)

	got, err := svc.Ask(context.Background(), "What is a p-value?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "A p-value is..." {
		t.Errorf("Ask = %q", got)
	}
	if p.last.MaxTokens != 400 || p.last.JSON {
		t.Errorf("unexpected request options %+v", p.last)
	}
	found := false
	for _, m := range p.last.Messages {
		if strings.Contains(m.Content, "Lecture 4: p-values") {
			found = true
		}
	}
	if !found {
		t.Error("course context not included")
	}
}

func TestAskWithoutContext(t *testing.T) {
	p := &fakeProvider{out: "answer"}
	svc := New(p, fakeRetriever(nil), 0, 5, 0, nil)
	if _, err := svc.Ask(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if len(p.last.Messages) != 2 {
		t.Errorf("expected system and user message only, got %d", len(p.last.Messages))
	}
}

func TestAskEmptyMessage(t *testing.T) {
	svc := New(&fakeProvider{}, nil, 0, 5, 0, nil)
	if _, err := svc.Ask(context.Background(), "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestAskModelFailure(t *testing.T) {
	svc := New(&fakeProvider{err: errors.New("boom")}, nil, 0, 5, 0, nil)
	if _, err := svc.Ask(context.Background(), "q"); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestStreamDeliversDeltas(t *testing.T) {
	p := &fakeProvider{deltas: []string{"Vari", "", "ance ", "measures spread."}}
	svc := New(p, nil, 0, 5, 0, nil)

	var sb strings.Builder
	err := svc.Stream(context.Background(), "What is variance?", func(d string) error {
		if d == "" {
			t.Error("empty delta forwarded")
		}
		sb.WriteString(d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sb.String() != "Variance measures spread." {
		t.Errorf("streamed %q", sb.String())
	}
}

func TestStreamCallbackErrorStops(t *testing.T) {
	p := &fakeProvider{deltas: []string{"a", "b", "c"}}
	svc := New(p, nil, 0, 5, 0, nil)
	stop := errors.New("client gone")

	n := 0
	err := svc.Stream(context.Background(), "q", func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("expected stop after first delta, got %v after %d", err, n)
	}
}
