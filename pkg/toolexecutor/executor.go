package toolexecutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/harun/deskpilot/pkg/toolexecutor"

// ErrToolNotSupported is reported in the tool result for unknown tool names.
var ErrToolNotSupported = errors.New("tool not supported")

// maxOutputSize bounds the text returned to the model.
const maxOutputSize = 10 * 1024

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	// Items is the element type of an array parameter.
	Items    string `json:"items,omitempty"`
	MinItems int    `json:"minItems,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    ToolCategory    `json:"category"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// Output is what a handler hands back to the model.
type Output struct {
	Text      string
	Image     []byte
	MediaType string
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (Output, error)

// Config configures a ToolExecutor.
type Config struct {
	Policy *ToolPolicy
	// Timeout bounds one handler run. Zero leaves it to the caller's context.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	params  map[string]map[string]interface{}
	order   []string
	policy  *ToolPolicy
	timeout time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// New creates a new ToolExecutor
func New(cfg Config) *ToolExecutor {
	return &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		params:  make(map[string]map[string]interface{}),
		policy:  cfg.Policy,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With().Str("component", "toolexecutor").Logger(),
	}
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}
	if def.Category == "" {
		def.Category = CategoryGeneral
	}

	schemaMap := generateSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema
	te.params[def.Name] = schemaMap
	te.order = append(te.order, def.Name)

	te.logger.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// ListTools returns registered tool names in registration order.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()
	return append([]string(nil), te.order...)
}

// Schemas lists the tools the policy allows, for the model.
func (te *ToolExecutor) Schemas() []llm.ToolSchema {
	te.mu.RLock()
	defer te.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(te.order))
	for _, name := range te.order {
		def := te.tools[name]
		if !te.policy.Evaluate(name, def.Category).Allowed {
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        name,
			Description: def.Description,
			Parameters:  te.params[name],
		})
	}
	return schemas
}

// Execute runs one tool call and returns its tool-role result message.
// Unknown, denied and invalid calls come back as an "Error: ..." result;
// handler failures are returned as errors.
func (te *ToolExecutor) Execute(ctx context.Context, call llm.ToolCall) (msg llm.Message, err error) {
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, te.logger).With().
		Str("tool", call.Name).
		Str("callId", call.ID).
		Logger()

	ctx, span := tracing.StartSpan(ctx, tracerName, "tool.execute",
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	te.mu.RLock()
	tool := te.tools[call.Name]
	schema := te.schemas[call.Name]
	te.mu.RUnlock()

	if tool == nil {
		logger.Warn().Msg("Tool not supported")
		return te.reject(ctx, call, start, fmt.Errorf("%w: %s", ErrToolNotSupported, call.Name)), nil
	}

	if eval := te.policy.Evaluate(call.Name, tool.Category); !eval.Allowed {
		logger.Warn().Str("violation", eval.ViolationType).Msg("Tool execution blocked by policy")
		return te.reject(ctx, call, start, fmt.Errorf("tool '%s' is not allowed by policy", call.Name)), nil
	}

	params, err := decodeArguments(call.Arguments)
	if err != nil {
		logger.Warn().Err(err).Msg("Tool arguments are not an object")
		return te.reject(ctx, call, start, err), nil
	}
	if err := validateParameters(schema, params); err != nil {
		logger.Warn().Err(err).Msg("Parameter validation failed")
		return te.reject(ctx, call, start, fmt.Errorf("parameter validation failed: %w", err)), nil
	}

	runCtx := ContextWithToolCall(ctx, call)
	if te.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, te.timeout)
		defer cancel()
	}

	type outcome struct {
		out Output
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := tool.Handler(runCtx, params)
		done <- outcome{out, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-runCtx.Done():
		res.err = runCtx.Err()
		if ctx.Err() == nil {
			res.err = fmt.Errorf("tool execution timeout after %v", te.timeout)
		}
	}

	duration := time.Since(start)
	observability.RecordToolExecution(call.Name, duration, res.err == nil)

	if res.err != nil {
		logger.Error().Err(res.err).Dur("duration", duration).Msg("Tool execution failed")
		te.audit(ctx, call, "failure", duration, res.err)
		return llm.Message{}, res.err
	}

	logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
	te.audit(ctx, call, "success", duration, nil)

	msg = llm.NewToolMessage(call.ID, truncateOutput(res.out.Text))
	if len(res.out.Image) > 0 {
		msg.Parts = append(msg.Parts, llm.ImagePart(res.out.Image, res.out.MediaType))
	}
	return msg, nil
}

// ErrorResult formats err as the tool result the model sees.
func ErrorResult(call llm.ToolCall, err error) llm.Message {
	return llm.NewToolMessage(call.ID, "Error: "+err.Error())
}

func (te *ToolExecutor) reject(ctx context.Context, call llm.ToolCall, start time.Time, err error) llm.Message {
	duration := time.Since(start)
	observability.RecordToolExecution(call.Name, duration, false)
	te.audit(ctx, call, "rejected", duration, err)
	return ErrorResult(call, err)
}

func (te *ToolExecutor) audit(ctx context.Context, call llm.ToolCall, status string, duration time.Duration, err error) {
	metadata := map[string]interface{}{
		"callId":     call.ID,
		"durationMs": duration.Milliseconds(),
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	observability.RecordActionAudit(ctx, call.Name, tracing.GetSessionID(ctx), status, metadata)
}

// decodeArguments parses raw tool arguments into an object. Empty arguments
// mean no parameters.
func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]interface{}{}, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: expected a JSON object")
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.Category != "" && !IsValidCategory(string(def.Category)) {
		return fmt.Errorf("invalid category %s", def.Category)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
		if param.Type == "array" && !validTypes[param.Items] {
			return fmt.Errorf("invalid item type %q for %s", param.Items, param.Name)
		}
	}
	return nil
}

// generateSchemaMap builds the JSON Schema object for a tool's parameters.
func generateSchemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []interface{}{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		if param.Type == "array" {
			paramSchema["items"] = map[string]interface{}{"type": param.Items}
			if param.MinItems > 0 {
				paramSchema["minItems"] = param.MinItems
			}
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

// truncateOutput truncates output if it exceeds the size limit
func truncateOutput(output string) string {
	if len(output) <= maxOutputSize {
		return output
	}
	return output[:maxOutputSize] + "\n... [output truncated]"
}
