package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider streams turns from the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    cfg.Logger.With().Str("component", "llm").Str("provider", ProviderAnthropic).Logger(),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

// Stream starts a streamed Messages API call.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.maxTokens
	}

	body, err := buildAnthropicBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "llm.stream",
		attribute.String("llm.provider", ProviderAnthropic),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)
	start := time.Now()

	var raw *http.Response
	err = p.client.Post(ctx, "v1/messages", body, &raw,
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		mbe := backendError(ProviderAnthropic, raw, err)
		observability.RecordLLMStream(ProviderAnthropic, time.Since(start), false)
		tracing.EndSpan(span, mbe)
		return nil, mbe
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		err := p.consume(ctx, raw, out)
		observability.RecordLLMStream(ProviderAnthropic, time.Since(start), err == nil)
		tracing.EndSpan(span, err)
	}()
	return out, nil
}

func (p *AnthropicProvider) consume(ctx context.Context, res *http.Response, out chan<- Event) error {
	dec := ssestream.NewDecoder(res)
	if dec == nil {
		err := errors.New("empty response body")
		send(ctx, out, Event{Kind: EventError, Err: err})
		return err
	}
	defer dec.Close()

	s := &anthropicStream{
		calls:  newCallAccumulator(),
		blocks: make(map[int]*thinkingBlock),
	}
	emit := func(ev Event) bool { return send(ctx, out, ev) }

	for dec.Next() {
		data := bytes.TrimSpace(dec.Event().Data)
		if len(data) == 0 {
			continue
		}

		done, err := s.apply(data, emit)
		if err != nil {
			if errors.Is(err, errMalformedChunk) {
				observability.RecordSkippedChunk(ProviderAnthropic)
				p.logger.Warn().
					Str("event", dec.Event().Type).
					Str("chunk", truncate(string(data), 200)).
					Msg("Skipping malformed stream chunk")
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			send(ctx, out, Event{Kind: EventError, Err: err})
			return err
		}
		if s.duplicateStop {
			s.duplicateStop = false
			p.logger.Debug().Msg("Ignoring repeated stop reason")
		}
		if done {
			break
		}
	}

	if err := dec.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		send(ctx, out, Event{Kind: EventError, Err: fmt.Errorf("stream read failed: %w", err)})
		return err
	}

	return s.flush(ctx, out, p.logger)
}

// thinkingBlock is one thinking or redacted thinking content block.
type thinkingBlock struct {
	thinking  strings.Builder
	signature strings.Builder
	redacted  json.RawMessage
}

func (b *thinkingBlock) raw() json.RawMessage {
	if b.redacted != nil {
		return b.redacted
	}
	data, _ := json.Marshal(struct {
		Type      string `json:"type"`
		Thinking  string `json:"thinking"`
		Signature string `json:"signature"`
	}{"thinking", b.thinking.String(), b.signature.String()})
	return data
}

// anthropicStream is the per-stream accumulator.
type anthropicStream struct {
	text          strings.Builder
	calls         *callAccumulator
	blocks        map[int]*thinkingBlock
	order         []*thinkingBlock
	stopReason    string
	finished      bool
	duplicateStop bool
}

// apply consumes one event. It reports true once the message has stopped.
func (s *anthropicStream) apply(data []byte, emit func(Event) bool) (bool, error) {
	if !gjson.ValidBytes(data) {
		return false, errMalformedChunk
	}
	root := gjson.ParseBytes(data)

	switch root.Get("type").String() {
	case "error":
		msg := root.Get("error.message").String()
		if msg == "" {
			msg = root.Get("error").Raw
		}
		return false, fmt.Errorf("backend reported error: %s", msg)

	case "content_block_start":
		idx, ok := blockIndex(root)
		if !ok {
			return false, errMalformedChunk
		}
		block := root.Get("content_block")
		switch block.Get("type").String() {
		case "text":
			s.text.WriteString(block.Get("text").String())
		case "tool_use":
			s.calls.start(idx, block.Get("id").String(), block.Get("name").String())
		case "thinking":
			tb := &thinkingBlock{}
			tb.thinking.WriteString(block.Get("thinking").String())
			tb.signature.WriteString(block.Get("signature").String())
			s.blocks[idx] = tb
			s.order = append(s.order, tb)
		case "redacted_thinking":
			tb := &thinkingBlock{redacted: json.RawMessage(block.Raw)}
			s.blocks[idx] = tb
			s.order = append(s.order, tb)
		}

	case "content_block_delta":
		idx, ok := blockIndex(root)
		if !ok {
			return false, errMalformedChunk
		}
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			s.text.WriteString(delta.Get("text").String())
		case "input_json_delta":
			s.calls.appendArgs(idx, delta.Get("partial_json").String())
		case "thinking_delta":
			text := delta.Get("thinking").String()
			if tb, ok := s.blocks[idx]; ok {
				tb.thinking.WriteString(text)
			}
			if text != "" && !emit(Event{Kind: EventReasoning, Text: text}) {
				return false, context.Canceled
			}
		case "signature_delta":
			if tb, ok := s.blocks[idx]; ok {
				tb.signature.WriteString(delta.Get("signature").String())
			}
		default:
			return false, errMalformedChunk
		}

	case "message_delta":
		if reason := root.Get("delta.stop_reason").String(); reason != "" {
			if s.finished {
				s.duplicateStop = true
			} else {
				s.finished = true
				s.stopReason = reason
			}
		}

	case "message_stop":
		return true, nil

	case "message_start", "content_block_stop", "ping":

	default:
		return false, errMalformedChunk
	}
	return false, nil
}

func (s *anthropicStream) flush(ctx context.Context, out chan<- Event, logger zerolog.Logger) error {
	calls, malformed := s.calls.finalize()
	for _, idx := range malformed {
		logger.Warn().Int("index", idx).Msg("Malformed tool call in stream")
	}
	for i := range calls {
		call := calls[i]
		if !send(ctx, out, Event{Kind: EventToolCall, ToolCall: &call}) {
			return ctx.Err()
		}
	}

	var blocks [][]byte
	for _, tb := range s.order {
		blocks = append(blocks, tb.raw())
	}

	final := Event{
		Kind:              EventFinal,
		Text:              s.text.String(),
		ContinuationToken: joinRaw(blocks),
		ShouldContinue:    s.stopReason == "max_tokens",
	}
	if !send(ctx, out, final) {
		return ctx.Err()
	}
	return nil
}

func blockIndex(root gjson.Result) (int, bool) {
	idx := root.Get("index")
	if idx.Type != gjson.Number {
		return 0, false
	}
	return int(idx.Int()), true
}

func buildAnthropicBody(req Request) ([]byte, error) {
	var (
		messages []anthropic.MessageParam
		system   []anthropic.TextBlockParam
		tokens   = make(map[int]json.RawMessage)
	)
	if req.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.System})
	}

	appendTurn := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if n := len(messages); n > 0 && role == anthropic.MessageParamRoleUser && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case RoleUser:
			blocks := anthropicBlocks(m.Parts)
			if len(blocks) > 0 {
				appendTurn(anthropic.MessageParamRoleUser, blocks)
			}
		case RoleTool:
			appendTurn(anthropic.MessageParamRoleUser, []anthropic.ContentBlockParamUnion{anthropicToolResult(m)})
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(`{}`)
				if gjson.ValidBytes(tc.Arguments) && gjson.ParseBytes(tc.Arguments).IsObject() {
					input = tc.Arguments
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 && len(m.ContinuationToken) == 0 {
				continue
			}
			if len(m.ContinuationToken) > 0 {
				tokens[len(messages)] = m.ContinuationToken
			}
			messages = append(messages, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		default:
			return nil, fmt.Errorf("unsupported role: %q", m.Role)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
		System:    system,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.ReasoningBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ReasoningBudget))
	}
	for _, tool := range req.Tools {
		tp := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.Parameters["properties"],
				Required:   requiredFields(tool.Parameters["required"]),
			},
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tp})
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "stream", true); err != nil {
		return nil, err
	}

	// Continuation blocks lead the assistant content they were produced with.
	for idx, token := range tokens {
		path := fmt.Sprintf("messages.%d.content", idx)
		var elems [][]byte
		for _, r := range gjson.ParseBytes(token).Array() {
			elems = append(elems, []byte(r.Raw))
		}
		for _, r := range gjson.GetBytes(body, path).Array() {
			elems = append(elems, []byte(r.Raw))
		}
		if body, err = sjson.SetRawBytes(body, path, joinRaw(elems)); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func anthropicBlocks(parts []Part) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case PartText:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MediaType, base64.StdEncoding.EncodeToString(p.Image)))
		}
	}
	return blocks
}

func anthropicToolResult(m Message) anthropic.ContentBlockParamUnion {
	result := anthropic.ToolResultBlockParam{ToolUseID: m.ToolCallID}
	for _, p := range m.Parts {
		switch p.Type {
		case PartText:
			if p.Text != "" {
				result.Content = append(result.Content, anthropic.ToolResultBlockParamContentUnion{
					OfText: &anthropic.TextBlockParam{Text: p.Text},
				})
			}
		case PartImage:
			result.Content = append(result.Content, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      base64.StdEncoding.EncodeToString(p.Image),
							MediaType: anthropic.Base64ImageSourceMediaType(p.MediaType),
						},
					},
				},
			})
		}
	}
	if strings.HasPrefix(m.Text(), "Error:") {
		result.IsError = anthropic.Bool(true)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &result}
}

func requiredFields(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
