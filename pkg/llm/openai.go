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

	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/harun/deskpilot/pkg/llm"

var errMalformedChunk = errors.New("malformed chunk")

// OpenAIProvider streams chat completions from an OpenAI-compatible backend.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
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

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger.With().Str("component", "llm").Str("provider", ProviderOpenAI).Logger(),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

// Stream starts a streamed chat completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.maxTokens
	}

	body, err := buildOpenAIBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "llm.stream",
		attribute.String("llm.provider", ProviderOpenAI),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)
	start := time.Now()

	var raw *http.Response
	err = p.client.Post(ctx, "chat/completions", body, &raw,
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		mbe := backendError(ProviderOpenAI, raw, err)
		observability.RecordLLMStream(ProviderOpenAI, time.Since(start), false)
		tracing.EndSpan(span, mbe)
		return nil, mbe
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		err := p.consume(ctx, raw, out)
		observability.RecordLLMStream(ProviderOpenAI, time.Since(start), err == nil)
		tracing.EndSpan(span, err)
	}()
	return out, nil
}

func (p *OpenAIProvider) consume(ctx context.Context, res *http.Response, out chan<- Event) error {
	dec := ssestream.NewDecoder(res)
	if dec == nil {
		err := errors.New("empty response body")
		send(ctx, out, Event{Kind: EventError, Err: err})
		return err
	}
	defer dec.Close()

	s := &openAIStream{calls: newCallAccumulator()}
	for dec.Next() {
		data := bytes.TrimSpace(dec.Event().Data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		if err := s.apply(data); err != nil {
			if errors.Is(err, errMalformedChunk) {
				observability.RecordSkippedChunk(ProviderOpenAI)
				p.logger.Warn().Str("chunk", truncate(string(data), 200)).Msg("Skipping malformed stream chunk")
				continue
			}
			send(ctx, out, Event{Kind: EventError, Err: err})
			return err
		}
		if s.duplicateFinish {
			s.duplicateFinish = false
			p.logger.Debug().Msg("Ignoring repeated finish signal")
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

// openAIStream is the per-stream accumulator.
type openAIStream struct {
	text            strings.Builder
	reasoning       strings.Builder
	details         [][]byte
	calls           *callAccumulator
	finished        bool
	finishReason    string
	duplicateFinish bool
}

func (s *openAIStream) apply(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errMalformedChunk
	}
	root := gjson.ParseBytes(data)
	if e := root.Get("error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		return fmt.Errorf("backend reported error: %s", msg)
	}
	if s.finished {
		if root.Get("choices.0.finish_reason").String() != "" {
			s.duplicateFinish = true
		}
		return nil
	}

	choice := root.Get("choices.0")
	if !choice.Exists() {
		return nil
	}
	if !choice.IsObject() {
		return errMalformedChunk
	}

	delta := choice.Get("delta")
	if c := delta.Get("content"); c.Type == gjson.String {
		s.text.WriteString(c.String())
	}
	for _, key := range []string{"reasoning", "reasoning_content"} {
		if r := delta.Get(key); r.Type == gjson.String {
			s.reasoning.WriteString(r.String())
		}
	}
	delta.Get("reasoning_details").ForEach(func(_, block gjson.Result) bool {
		s.details = append(s.details, []byte(block.Raw))
		return true
	})
	delta.Get("tool_calls").ForEach(func(pos, tc gjson.Result) bool {
		idx := int(pos.Int())
		if i := tc.Get("index"); i.Exists() {
			idx = int(i.Int())
		}
		s.calls.start(idx, tc.Get("id").String(), tc.Get("function.name").String())
		s.calls.appendArgs(idx, tc.Get("function.arguments").String())
		return true
	})

	if reason := choice.Get("finish_reason").String(); reason != "" {
		s.finished = true
		s.finishReason = reason
	}
	return nil
}

// flush emits the tool calls, the buffered reasoning and the final message.
func (s *openAIStream) flush(ctx context.Context, out chan<- Event, logger zerolog.Logger) error {
	calls, malformed := s.calls.finalize()
	for _, idx := range malformed {
		logger.Warn().Int("index", idx).Msg("Malformed tool call in stream")
	}

	for i := range calls {
		calls[i].ContinuationToken = s.tokenFor(calls[i].ID)
		call := calls[i]
		if !send(ctx, out, Event{Kind: EventToolCall, ToolCall: &call}) {
			return ctx.Err()
		}
	}

	if s.reasoning.Len() > 0 {
		if !send(ctx, out, Event{Kind: EventReasoning, Text: s.reasoning.String()}) {
			return ctx.Err()
		}
	}

	final := Event{
		Kind:              EventFinal,
		Text:              s.text.String(),
		ContinuationToken: joinRaw(s.details),
		ShouldContinue:    s.finishReason == "length",
	}
	if !send(ctx, out, final) {
		return ctx.Err()
	}
	return nil
}

// tokenFor returns the reasoning blocks whose id matches a tool call.
func (s *openAIStream) tokenFor(id string) json.RawMessage {
	if id == "" {
		return nil
	}
	var blocks [][]byte
	for _, block := range s.details {
		if gjson.GetBytes(block, "id").String() == id {
			blocks = append(blocks, block)
		}
	}
	return joinRaw(blocks)
}

func buildOpenAIBody(req Request) ([]byte, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	tokens := make(map[int]json.RawMessage)

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text()))
		case RoleUser:
			messages = append(messages, openAIUserMessage(m.Parts))
		case RoleAssistant:
			if len(m.ContinuationToken) > 0 {
				tokens[len(messages)] = m.ContinuationToken
			}
			messages = append(messages, openAIAssistantMessage(m))
		case RoleTool:
			messages = append(messages, openai.ToolMessage(m.Text(), m.ToolCallID))
			// Tool messages carry text only; images follow as a user turn.
			if m.HasImage() {
				parts := []Part{TextPart(fmt.Sprintf("Image returned by tool call %s.", m.ToolCallID))}
				for _, part := range m.Parts {
					if part.Type == PartImage {
						parts = append(parts, part)
					}
				}
				messages = append(messages, openAIUserMessage(parts))
			}
		default:
			return nil, fmt.Errorf("unsupported role: %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		})
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "stream", true); err != nil {
		return nil, err
	}
	for idx, token := range tokens {
		body, err = sjson.SetRawBytes(body, fmt.Sprintf("messages.%d.reasoning_details", idx), token)
		if err != nil {
			return nil, err
		}
	}
	if req.ReasoningBudget > 0 {
		if body, err = sjson.SetBytes(body, "reasoning.max_tokens", req.ReasoningBudget); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func openAIUserMessage(parts []Part) openai.ChatCompletionMessageParamUnion {
	hasImage := false
	for _, p := range parts {
		if p.Type == PartImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openai.UserMessage(Message{Parts: parts}.Text())
	}

	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case PartText:
			content = append(content, openai.TextContentPart(p.Text))
		case PartImage:
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(p),
			}))
		}
	}
	return openai.UserMessage(content)
}

func openAIAssistantMessage(m Message) openai.ChatCompletionMessageParamUnion {
	var msg openai.ChatCompletionAssistantMessageParam
	if text := m.Text(); text != "" {
		msg.Content.OfString = openai.String(text)
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func dataURL(p Part) string {
	return "data:" + p.MediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Image)
}

// joinRaw wraps raw JSON values in an array without re-encoding them.
func joinRaw(blocks [][]byte) json.RawMessage {
	if len(blocks) == 0 {
		return nil
	}
	var b bytes.Buffer
	b.WriteByte('[')
	b.Write(bytes.Join(blocks, []byte(",")))
	b.WriteByte(']')
	return b.Bytes()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
