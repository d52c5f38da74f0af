package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/resilience"
)

const extractSystemPrompt = `You are a legal document analyst extracting structured facts ` +
	`(dates, parties, amounts, addresses) from case documents. ` +
	`Respond with a strict JSON array only. Each element: ` +
	`{"category_key": string, "field_key": string, "value": string, ` +
	`"source_quote": string, "confidence": number between 0 and 1}. ` +
	`Only report facts present in the text. Return [] when nothing matches.`

const classifySystemPrompt = `You classify legal case documents. Respond with strict JSON only: ` +
	`{"document_type": string}. Use one of: correspondence, pleading, medical_record, ` +
	`insurance_policy, contract, court_order, invoice, witness_statement, other.`

// Messager is the slice of the Anthropic SDK used here, extracted for
// testability.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicExtractor implements Extractor on the Anthropic Messages API,
// with client-side rate limiting and transient-error retries.
type AnthropicExtractor struct {
	messages  Messager
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.Policy
}

// Options tunes the Anthropic extractor.
type Options struct {
	Model             string
	MaxTokens         int64
	RequestsPerSecond float64
	Retry             resilience.Policy
}

// NewAnthropicExtractor creates an extractor backed by the official SDK.
func NewAnthropicExtractor(apiKey string, opts Options) *AnthropicExtractor {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newAnthropicExtractor(&client.Messages, opts)
}

// NewStaticExtractor returns an Extractor that always reports the given
// findings; used by tests and offline runs.
func NewStaticExtractor(found []model.RawFinding, docType string) Extractor {
	return &staticExtractor{found: found, docType: docType}
}

func newAnthropicExtractor(messages Messager, opts Options) *AnthropicExtractor {
	if opts.Model == "" {
		opts.Model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	return &AnthropicExtractor{
		messages:  messages,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		retry:     opts.Retry,
	}
}

// Extract sends one chunk and parses the returned finding tuples.
func (e *AnthropicExtractor) Extract(ctx context.Context, chunk string, tax TaxonomyContext) ([]model.RawFinding, error) {
	if strings.TrimSpace(chunk) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf("Fields to extract:\n%s\nDocument text:\n%s", tax.Render(), chunk)
	text, err := e.complete(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "extraction: extract chunk")
	}

	found, err := parseFindings(text)
	if err != nil {
		return nil, eris.Wrap(err, "extraction: parse response")
	}
	return found, nil
}

// ClassifyDocument returns a document-type label for the text. Long
// documents are truncated; the opening pages carry the type signal.
func (e *AnthropicExtractor) ClassifyDocument(ctx context.Context, text string) (string, error) {
	const classifyWindow = 6000
	if len(text) > classifyWindow {
		text = text[:classifyWindow]
	}

	raw, err := e.complete(ctx, classifySystemPrompt, text)
	if err != nil {
		return "", eris.Wrap(err, "extraction: classify document")
	}

	var resp struct {
		DocumentType string `json:"document_type"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw, '{', '}')), &resp); err != nil {
		return "", eris.Wrap(err, "extraction: parse classification")
	}
	if resp.DocumentType == "" {
		return "other", nil
	}
	return resp.DocumentType, nil
}

func (e *AnthropicExtractor) complete(ctx context.Context, system, prompt string) (string, error) {
	return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (string, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := e.messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(e.model),
			MaxTokens:   e.maxTokens,
			System:      []anthropic.TextBlockParam{{Text: system}},
			Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
			Temperature: anthropic.Float(0),
		})
		if err != nil {
			return "", err
		}

		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return "", eris.New("extraction: empty completion")
		}

		zap.L().Debug("extraction: completion",
			zap.Int64("input_tokens", resp.Usage.InputTokens),
			zap.Int64("output_tokens", resp.Usage.OutputTokens),
		)
		return b.String(), nil
	})
}

// parseFindings decodes a JSON array of finding tuples, tolerating prose
// around the JSON. Confidence is clamped to [0,1]; elements missing a
// field key are dropped.
func parseFindings(text string) ([]model.RawFinding, error) {
	payload := extractJSON(text, '[', ']')
	if payload == "" {
		return nil, eris.New("extraction: no JSON array in response")
	}

	var raw []model.RawFinding
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, eris.Wrap(err, "extraction: decode findings")
	}

	out := raw[:0]
	for _, f := range raw {
		if f.FieldKey == "" || f.Value == "" {
			continue
		}
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 1 {
			f.Confidence = 1
		}
		out = append(out, f)
	}
	return out, nil
}

// extractJSON returns the outermost open..close span in text, or "".
func extractJSON(text string, open, closing byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// staticExtractor is a fixed-output Extractor for tests and dry runs.
type staticExtractor struct {
	found   []model.RawFinding
	docType string
}

func (s *staticExtractor) Extract(_ context.Context, _ string, _ TaxonomyContext) ([]model.RawFinding, error) {
	return s.found, nil
}

func (s *staticExtractor) ClassifyDocument(_ context.Context, _ string) (string, error) {
	if s.docType == "" {
		return "other", nil
	}
	return s.docType, nil
}
