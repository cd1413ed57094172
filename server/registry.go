package server

import (
	"fmt"
	"sync"

	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/schema"
)

// ToolHandlerFunc is the signature a registered tool's implementation must
// satisfy. ctx carries cancellation and the request-scoped Context value;
// arguments have already been validated against the tool's input schema.
type ToolHandlerFunc func(ctx *Context, arguments map[string]interface{}) (content []protocol.Content, structuredContent map[string]interface{}, isError bool)

// ResourceReaderFunc produces the contents of a resource read. Implementers
// of templated resources receive the resolved URI (after {var} expansion).
type ResourceReaderFunc func(ctx *Context, uri string) ([]protocol.ResourceContents, error)

// PromptRendererFunc expands a prompt template given its arguments.
type PromptRendererFunc func(ctx *Context, arguments map[string]string) (*protocol.GetPromptResult, error)

type registeredTool struct {
	tool    protocol.Tool
	handler ToolHandlerFunc
}

type registeredResource struct {
	resource protocol.Resource
	reader   ResourceReaderFunc
}

type registeredTemplate struct {
	template protocol.ResourceTemplate
	reader   ResourceReaderFunc
}

type registeredPrompt struct {
	prompt   protocol.Prompt
	renderer PromptRendererFunc
}

// registry owns the tool/resource/prompt maps exclusively, as required by
// §3's ownership rule: the dispatcher is the only exclusive writer, but
// reads (list/call) come from many concurrent requests and take the shared
// lock.
type registry struct {
	mu        sync.RWMutex
	validator *schema.Validator
	logging   *loggingConfig

	tools     map[string]*registeredTool
	resources map[string]*registeredResource
	templates map[string]*registeredTemplate
	prompts   map[string]*registeredPrompt
}

// newRegistry takes the server's *loggingConfig, not a bare Logger, so a
// later WithLogger option is reflected in registration warnings the same
// way loggingMiddleware already picks up logger changes.
func newRegistry(validator *schema.Validator, logging *loggingConfig) *registry {
	return &registry{
		validator: validator,
		logging:   logging,
		tools:     make(map[string]*registeredTool),
		resources: make(map[string]*registeredResource),
		templates: make(map[string]*registeredTemplate),
		prompts:   make(map[string]*registeredPrompt),
	}
}

// registerTool validates and inserts a tool, returning a *RegisterError
// describing rejection per §4.3's table.
func (r *registry) registerTool(tool protocol.Tool, handler ToolHandlerFunc) error {
	if tool.Name == "" || tool.Description == "" {
		return newRegisterError(ReasonMissingDescription, "tool name and description must both be non-empty")
	}
	if protocol.IsReservedName(tool.Name) {
		return newRegisterError(ReasonReservedName, fmt.Sprintf("%q collides with a reserved method name", tool.Name))
	}
	if tool.OutputSchema == nil {
		return newRegisterError(ReasonMissingOutputSchema, fmt.Sprintf("tool %q has no output_schema", tool.Name))
	}
	if warning, tooLong := schema.ValidateToolDescription(tool.Description); tooLong && r.logging != nil {
		r.logging.logger.Warn(warning, "tool", tool.Name)
	}
	if err := r.validateSchemaDoc("input_schema", tool.InputSchema); err != nil {
		return err
	}
	if err := r.validateSchemaDoc("output_schema", tool.OutputSchema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return newRegisterError(ReasonToolAlreadyExists, tool.Name)
	}
	r.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
	return nil
}

func (r *registry) validateSchemaDoc(path string, doc map[string]interface{}) error {
	if doc == nil {
		return nil
	}
	if depth := schema.SchemaDepth(doc); depth > schema.MaxSchemaDepth {
		return newInvalidSchemaError(path, fmt.Sprintf("nesting depth %d exceeds maximum %d", depth, schema.MaxSchemaDepth))
	}
	if complexity := schema.SchemaComplexity(doc); complexity > schema.MaxSchemaComplexity {
		return newInvalidSchemaError(path, fmt.Sprintf("complexity %d exceeds maximum %d", complexity, schema.MaxSchemaComplexity))
	}
	if err := r.validator.ValidateSchemaDocument(doc); err != nil {
		return newInvalidSchemaError(path, err.Error())
	}
	return nil
}

func (r *registry) removeTool(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	return true
}

func (r *registry) listTools() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.tool)
	}
	return out
}

func (r *registry) tool(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *registry) validateToolCall(name string, arguments map[string]interface{}) (*registeredTool, error) {
	t, ok := r.tool(name)
	if !ok {
		return nil, protocol.NewNotFoundError(fmt.Sprintf("tool %q not found", name))
	}
	if t.tool.InputSchema != nil {
		if err := r.validator.Validate(t.tool.InputSchema, map[string]interface{}(arguments)); err != nil {
			return nil, protocol.NewInvalidParamsError(err.Error())
		}
	}
	scanner := schema.NewSecurityScanner()
	if findings := scanner.ScanValue(map[string]interface{}(arguments)); schema.HasErrors(findings) {
		return nil, protocol.NewInvalidParamsError("arguments failed security validation")
	}
	return t, nil
}

func (r *registry) registerResource(res protocol.Resource, reader ResourceReaderFunc) error {
	if res.URI == "" {
		return newRegisterError(ReasonMissingDescription, "resource uri cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[res.URI] = &registeredResource{resource: res, reader: reader}
	return nil
}

func (r *registry) removeResource(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[uri]; !ok {
		return false
	}
	delete(r.resources, uri)
	return true
}

func (r *registry) listResources() []protocol.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.resource)
	}
	return out
}

func (r *registry) resource(uri string) (*registeredResource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

func (r *registry) registerTemplate(tmpl protocol.ResourceTemplate, reader ResourceReaderFunc) error {
	if tmpl.URITemplate == "" {
		return newRegisterError(ReasonMissingDescription, "resource template uri cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tmpl.URITemplate] = &registeredTemplate{template: tmpl, reader: reader}
	return nil
}

func (r *registry) listTemplates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ResourceTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.template)
	}
	return out
}

func (r *registry) templatesSnapshot() map[string]*registeredTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*registeredTemplate, len(r.templates))
	for k, v := range r.templates {
		out[k] = v
	}
	return out
}

func (r *registry) registerPrompt(p protocol.Prompt, renderer PromptRendererFunc) error {
	if p.Name == "" {
		return newRegisterError(ReasonMissingDescription, "prompt name cannot be empty")
	}
	if protocol.IsReservedName(p.Name) {
		return newRegisterError(ReasonReservedName, fmt.Sprintf("%q collides with a reserved method name", p.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[p.Name] = &registeredPrompt{prompt: p, renderer: renderer}
	return nil
}

func (r *registry) removePrompt(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prompts[name]; !ok {
		return false
	}
	delete(r.prompts, name)
	return true
}

func (r *registry) listPrompts() []protocol.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p.prompt)
	}
	return out
}

func (r *registry) prompt(name string) (*registeredPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}
