package brief

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ThorfinnThor/radar/internal/rank"
)

// scriptedMessager returns one queued reply per call.
type scriptedMessager struct {
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (m *scriptedMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	i := m.calls
	m.calls++
	if len(params.Messages) > 0 && len(params.Messages[0].Content) > 0 {
		if tb := params.Messages[0].Content[0].OfText; tb != nil {
			m.prompts = append(m.prompts, tb.Text)
		}
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	text := ""
	if i < len(m.replies) {
		text = m.replies[i]
	}
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}}}, nil
}

const goodReply = "```json\n{\"summary\": \"Acme runs a CAR-T phase 1.\", \"why_now\": \"Recruiting now.\", \"talking_points\": [\"Potency assays\", \"Flow panels\"], \"first_contact\": \"Director, Bioassay\"}\n```"

func row(name string) rank.Row {
	return rank.Row{AccountName: name, Fit: 5, Urgency: 3, Total: 8, FitReason: "CAR-T", TargetRoles: []string{"Director, Bioassay"}}
}

func TestWriteParsesFencedJSON(t *testing.T) {
	m := &scriptedMessager{replies: []string{goodReply}}
	w := NewWriter(m, Config{}, nil)
	b, err := w.Write(context.Background(), row("Acme"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if b.Summary != "Acme runs a CAR-T phase 1." || len(b.TalkingPoints) != 2 {
		t.Fatalf("brief %+v", b)
	}
	if !strings.Contains(m.prompts[0], `"account": "Acme"`) {
		t.Fatalf("prompt missing evidence: %s", m.prompts[0])
	}
	md := b.Markdown()
	if !strings.Contains(md, "**Brief:** Acme runs a CAR-T phase 1.") || !strings.Contains(md, "- Potency assays") {
		t.Fatalf("markdown %q", md)
	}
}

func TestWriteRetriesInvalidContentWithFeedback(t *testing.T) {
	m := &scriptedMessager{replies: []string{`{"summary": ""}`, goodReply}}
	w := NewWriter(m, Config{}, nil)
	if _, err := w.Write(context.Background(), row("Acme")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.calls != 2 || !strings.Contains(m.prompts[1], "failed validation") {
		t.Fatalf("calls=%d prompts=%v", m.calls, m.prompts)
	}
}

func TestWriteDoesNotRetryPermanentErrors(t *testing.T) {
	m := &scriptedMessager{errs: []error{errors.New("bad request")}}
	w := NewWriter(m, Config{}, nil)
	if _, err := w.Write(context.Background(), row("Acme")); err == nil {
		t.Fatalf("expected error")
	}
	if m.calls != 1 {
		t.Fatalf("calls=%d", m.calls)
	}
}

func TestWriteRetriesTimeouts(t *testing.T) {
	m := &scriptedMessager{errs: []error{context.DeadlineExceeded}, replies: []string{"", goodReply}}
	w := NewWriter(m, Config{}, nil)
	var slept []time.Duration
	w.sleep = func(d time.Duration) { slept = append(slept, d) }
	if _, err := w.Write(context.Background(), row("Acme")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("slept %v", slept)
	}
}

func TestAnnotateDegradesPerAccount(t *testing.T) {
	m := &scriptedMessager{replies: []string{goodReply, "not json", "still not json"}}
	w := NewWriter(m, Config{TopN: 2}, nil)
	rows := []rank.Row{row("Acme"), row("Beta"), row("Gamma")}
	if n := w.Annotate(context.Background(), rows); n != 1 {
		t.Fatalf("annotated %d", n)
	}
	if rows[0].Brief == "" || rows[1].Brief != "" || rows[2].Brief != "" {
		t.Fatalf("briefs %q %q %q", rows[0].Brief, rows[1].Brief, rows[2].Brief)
	}
}

func TestNewWriterFromEnvRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewWriterFromEnv(Config{}, nil); err == nil {
		t.Fatalf("expected error without key")
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	old := newAnthropicClient
	defer func() { newAnthropicClient = old }()
	var gotKey string
	newAnthropicClient = func(k string) AnthropicMessager {
		gotKey = k
		return &scriptedMessager{}
	}
	if _, err := NewWriterFromEnv(Config{}, nil); err != nil || gotKey != "test-key" {
		t.Fatalf("err=%v key=%q", err, gotKey)
	}
}
