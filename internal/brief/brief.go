// Package brief asks Claude for a short outreach brief per ranked account.
package brief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/rank"
)

const systemPrompt = "You are a life-science sales strategist preparing account briefs for a translational and immune-monitoring services team. Use only the evidence provided. Respond with strict JSON only."

const maxAttempts = 2

type Config struct {
	Model     string
	MaxTokens int
	TopN      int
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type Writer struct {
	messages AnthropicMessager
	cfg      Config
	log      *logger.Logger
	sleep    func(time.Duration)
}

func NewWriter(messages AnthropicMessager, cfg Config, log *logger.Logger) *Writer {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Writer{messages: messages, cfg: cfg, log: log, sleep: time.Sleep}
}

// NewWriterFromEnv builds a writer from ANTHROPIC_API_KEY.
func NewWriterFromEnv(cfg Config, log *logger.Logger) (*Writer, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return NewWriter(newAnthropicClient(apiKey), cfg, log), nil
}

// Brief is the structured answer the model returns.
type Brief struct {
	Summary       string   `json:"summary"`
	WhyNow        string   `json:"why_now"`
	TalkingPoints []string `json:"talking_points"`
	FirstContact  string   `json:"first_contact"`
}

func (b Brief) validate() error {
	var problems []string
	if strings.TrimSpace(b.Summary) == "" {
		problems = append(problems, "summary is required")
	}
	if len(b.TalkingPoints) == 0 {
		problems = append(problems, "talking_points must not be empty")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Markdown renders the brief as a report fragment.
func (b Brief) Markdown() string {
	var sb strings.Builder
	sb.WriteString("**Brief:** " + strings.TrimSpace(b.Summary) + "\n")
	if w := strings.TrimSpace(b.WhyNow); w != "" {
		sb.WriteString("\n**Why now:** " + w + "\n")
	}
	if len(b.TalkingPoints) > 0 {
		sb.WriteString("\n")
		for _, p := range b.TalkingPoints {
			if p = strings.TrimSpace(p); p != "" {
				sb.WriteString("- " + p + "\n")
			}
		}
	}
	if c := strings.TrimSpace(b.FirstContact); c != "" {
		sb.WriteString("\n**First contact:** " + c + "\n")
	}
	return sb.String()
}

func buildPrompt(row rank.Row) string {
	evidence := map[string]any{
		"account":         row.AccountName,
		"fit":             row.Fit,
		"fit_reason":      row.FitReason,
		"urgency":         row.Urgency,
		"urgency_reason":  row.UrgencyReason,
		"urgency_source":  row.UrgencySource,
		"total":           row.Total,
		"triggers":        row.TriggerSummary,
		"best_fit_trial":  row.BestFitTrial,
		"sec_examples":    row.SEC.Examples,
		"patent_examples": row.Patents.Examples,
		"job_examples":    row.Jobs.Examples,
		"target_roles":    row.TargetRoles,
	}
	blob, _ := json.MarshalIndent(evidence, "", "  ")
	return "Write an outreach brief for this account.\n\nEvidence:\n" + string(blob) +
		"\n\nReturn JSON: {\"summary\": string, \"why_now\": string, \"talking_points\": [string, 2-4 items], \"first_contact\": string (one of the target roles)}." +
		"\n\nRespond with only valid JSON matching the schema."
}

// Write asks for one account's brief. Transient failures are retried once;
// content that fails to parse or validate is retried with feedback.
func (w *Writer) Write(ctx context.Context, row rank.Row) (Brief, error) {
	prompt := buildPrompt(row)
	feedback := ""
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		full := prompt
		if feedback != "" {
			full += "\n\n" + feedback
		}
		raw, err := w.generate(ctx, full)
		if err != nil {
			lastErr = err
			if isTransient(err) && attempt < maxAttempts {
				w.sleep(backoffDelay(attempt))
				continue
			}
			return Brief{}, fmt.Errorf("brief %s: %w", row.AccountName, err)
		}
		var b Brief
		if err := json.Unmarshal([]byte(stripCodeFences(raw)), &b); err != nil {
			lastErr = err
			feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
			continue
		}
		if err := b.validate(); err != nil {
			lastErr = err
			feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
			continue
		}
		return b, nil
	}
	return Brief{}, fmt.Errorf("brief %s: %w", row.AccountName, lastErr)
}

func (w *Writer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := w.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(w.cfg.Model),
		MaxTokens:   int64(w.cfg.MaxTokens),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0.2),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Annotate fills Brief on the first TopN rows. A failed brief is logged and
// left empty.
func (w *Writer) Annotate(ctx context.Context, rows []rank.Row) int {
	top := rank.Top(rows, w.cfg.TopN)
	written := 0
	for i := range top {
		if ctx.Err() != nil {
			break
		}
		b, err := w.Write(ctx, rows[i])
		if err != nil {
			w.log.Warn("brief skipped", "account", rows[i].AccountName, "error", err)
			continue
		}
		rows[i].Brief = b.Markdown()
		written++
	}
	return written
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}
