package server

import (
	"context"
	"encoding/json"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// ProtocolVersion is the MCP protocol revision negotiated by initialize.
const ProtocolVersion = "2024-11-05"

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Processor validates and executes a single JSON-RPC envelope against the
// method registry. It is stateless with respect to transport: it never
// touches the stream; handlers push async events only through the session's
// notification queue.
type Processor struct {
	tools     map[string]domain.Tool
	toolOrder []string
	methods   map[string]domain.ToolHandler
	resources domain.ResourceProvider
	prompts   domain.PromptProvider
	info      ServerInfo
	logger    *logging.Logger
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	Tools []domain.Tool

	// Methods are application JSON-RPC methods outside the MCP surface,
	// dispatched by method name with params decoded into a map.
	Methods map[string]domain.ToolHandler

	Resources domain.ResourceProvider
	Prompts   domain.PromptProvider
	Info      ServerInfo
	Logger    *logging.Logger
}

// NewProcessor creates a request processor with the given method registry.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	p := &Processor{
		tools:     make(map[string]domain.Tool, len(cfg.Tools)),
		methods:   cfg.Methods,
		resources: cfg.Resources,
		prompts:   cfg.Prompts,
		info:      cfg.Info,
		logger:    cfg.Logger,
	}
	for _, tool := range cfg.Tools {
		if _, exists := p.tools[tool.Name]; !exists {
			p.toolOrder = append(p.toolOrder, tool.Name)
		}
		p.tools[tool.Name] = tool
	}
	return p
}

// Execute runs one envelope for the session. The returned response is nil
// when the envelope is a protocol notification: the handler still runs, but
// errors are logged instead of returned.
func (p *Processor) Execute(ctx context.Context, sess *Session, req domain.Request) *domain.Response {
	sess.Touch()

	var result any
	err := req.Validate()
	if err == nil {
		result, err = p.dispatch(ctx, sess, req)
	}

	if req.IsNotification() {
		if err != nil {
			p.logger.Warn("notification handler failed", logging.Fields{
				"session_id": sess.ID(),
				"method":     req.Method,
				"err":        err.Error(),
			})
		}
		return nil
	}

	if err != nil {
		resp := domain.ResponseFromError(req.ID, err)
		return &resp
	}
	resp := domain.NewResponse(req.ID, result)
	return &resp
}

// dispatch routes a validated envelope to its handler. Handler panics are
// recovered here and converted to internal errors so a misbehaving tool can
// never take the session down.
func (p *Processor) dispatch(ctx context.Context, sess *Session, req domain.Request) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("handler panicked", logging.Fields{
				"session_id": sess.ID(),
				"method":     req.Method,
				"panic":      rec,
			})
			result = nil
			err = domain.NewError(domain.CodeInternalError, "internal error")
		}
	}()

	if !sess.Initialized() && !allowedBeforeInitialize(req.Method) {
		return nil, domain.Errorf(domain.CodeNotInitialized, "method %q requires an initialized session", req.Method)
	}

	switch req.Method {
	case "initialize":
		return p.handleInitialize(sess, req.Params)
	case "initialized":
		return map[string]any{"status": "acknowledged"}, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": p.listTools()}, nil
	case "tools/call":
		return p.handleToolCall(ctx, sess, req.Params)
	case "resources/list":
		if p.resources == nil {
			return nil, domain.Errorf(domain.CodeMethodNotFound, "method not found: %s", req.Method)
		}
		return map[string]any{"resources": p.resources.ListResources(ctx)}, nil
	case "resources/read":
		return p.handleResourceRead(ctx, req.Params)
	case "prompts/list":
		if p.prompts == nil {
			return nil, domain.Errorf(domain.CodeMethodNotFound, "method not found: %s", req.Method)
		}
		return map[string]any{"prompts": p.prompts.ListPrompts(ctx)}, nil
	case "prompts/get":
		return p.handlePromptGet(ctx, req.Params)
	}

	if handler, ok := p.methods[req.Method]; ok {
		var args map[string]any
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &args); err != nil {
				return nil, domain.Errorf(domain.CodeInvalidParams, "malformed params: %v", err)
			}
		}
		return handler(ctx, args, sess)
	}
	return nil, domain.Errorf(domain.CodeMethodNotFound, "method not found: %s", req.Method)
}

// allowedBeforeInitialize lists the methods accepted on a fresh session.
// Everything else fails with NotInitialized until the handshake completes.
func allowedBeforeInitialize(method string) bool {
	switch method {
	case "initialize", "initialized", "ping":
		return true
	}
	return false
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      map[string]any `json:"clientInfo"`
}

func (p *Processor) handleInitialize(sess *Session, raw json.RawMessage) (any, error) {
	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, domain.Errorf(domain.CodeInvalidParams, "malformed initialize params: %v", err)
		}
	}
	sess.MarkInitialized(params.Capabilities)

	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{"subscribe": true},
			"prompts":   map[string]any{},
			"logging":   map[string]any{},
		},
		"serverInfo": p.info,
	}, nil
}

func (p *Processor) listTools() []domain.Tool {
	tools := make([]domain.Tool, 0, len(p.toolOrder))
	for _, name := range p.toolOrder {
		tools = append(tools, p.tools[name])
	}
	return tools
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (p *Processor) handleToolCall(ctx context.Context, sess *Session, raw json.RawMessage) (any, error) {
	var params toolCallParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, domain.NewError(domain.CodeInvalidParams, "missing tool name")
	}

	tool, ok := p.tools[params.Name]
	if !ok {
		return nil, domain.Errorf(domain.CodeInvalidParams, "unknown tool %q", params.Name)
	}
	return tool.Handler(ctx, params.Arguments, sess)
}

func (p *Processor) handleResourceRead(ctx context.Context, raw json.RawMessage) (any, error) {
	if p.resources == nil {
		return nil, domain.NewError(domain.CodeMethodNotFound, "method not found: resources/read")
	}
	var params struct {
		URI string `json:"uri"`
	}
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, domain.NewError(domain.CodeInvalidParams, "missing resource uri")
	}

	contents, err := p.resources.ReadResource(ctx, params.URI)
	if err != nil {
		return nil, err
	}
	return map[string]any{"contents": []domain.ResourceContents{contents}}, nil
}

func (p *Processor) handlePromptGet(ctx context.Context, raw json.RawMessage) (any, error) {
	if p.prompts == nil {
		return nil, domain.NewError(domain.CodeMethodNotFound, "method not found: prompts/get")
	}
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, domain.NewError(domain.CodeInvalidParams, "missing prompt name")
	}
	return p.prompts.GetPrompt(ctx, params.Name, params.Arguments)
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return domain.NewError(domain.CodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Errorf(domain.CodeInvalidParams, "malformed params: %v", err)
	}
	return nil
}
