package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/schema"
)

func newTestRegistry() *registry {
	return newRegistry(schema.NewValidator(), newLoggingConfig(logx.NewDiscardLogger(), true))
}

func noopToolHandler(ctx *Context, arguments map[string]interface{}) ([]protocol.Content, map[string]interface{}, bool) {
	return nil, nil, false
}

func echoInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"text"},
	}
}

func TestRegistryRegisterToolRequiresNameAndDescription(t *testing.T) {
	r := newTestRegistry()
	err := r.registerTool(protocol.Tool{OutputSchema: map[string]interface{}{"type": "object"}}, noopToolHandler)
	require.Error(t, err)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, ReasonMissingDescription, regErr.Reason)
}

func TestRegistryRegisterToolRequiresOutputSchema(t *testing.T) {
	r := newTestRegistry()
	err := r.registerTool(protocol.Tool{Name: "echo", Description: "echoes input"}, noopToolHandler)
	require.Error(t, err)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, ReasonMissingOutputSchema, regErr.Reason)
}

func TestRegistryRegisterToolAcceptsOverlongDescriptionWithWarningOnly(t *testing.T) {
	r := newTestRegistry()
	overlong := make([]byte, schema.MaxToolDescriptionLength+1)
	for i := range overlong {
		overlong[i] = 'a'
	}
	err := r.registerTool(protocol.Tool{
		Name:         "echo",
		Description:  string(overlong),
		OutputSchema: map[string]interface{}{"type": "object"},
	}, noopToolHandler)
	require.NoError(t, err, "an overlong description is a warning, not a registration failure")
	_, ok := r.tool("echo")
	require.True(t, ok)
}

func TestRegistryRegisterToolRejectsReservedName(t *testing.T) {
	r := newTestRegistry()
	err := r.registerTool(protocol.Tool{
		Name:         protocol.MethodToolsList,
		Description:  "shadows a protocol method",
		OutputSchema: map[string]interface{}{"type": "object"},
	}, noopToolHandler)
	require.Error(t, err)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, ReasonReservedName, regErr.Reason)
}

func TestRegistryRegisterToolRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry()
	tool := protocol.Tool{
		Name:         "echo",
		Description:  "echoes input",
		InputSchema:  echoInputSchema(),
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, r.registerTool(tool, noopToolHandler))

	err := r.registerTool(tool, noopToolHandler)
	require.Error(t, err)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, ReasonToolAlreadyExists, regErr.Reason)
}

func TestRegistryRegisterToolSucceedsAndIsListed(t *testing.T) {
	r := newTestRegistry()
	tool := protocol.Tool{
		Name:         "echo",
		Description:  "echoes input",
		InputSchema:  echoInputSchema(),
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, r.registerTool(tool, noopToolHandler))

	tools := r.listTools()
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)

	got, ok := r.tool("echo")
	require.True(t, ok)
	require.Equal(t, "echo", got.tool.Name)
}

func TestRegistryRemoveTool(t *testing.T) {
	r := newTestRegistry()
	tool := protocol.Tool{
		Name:         "echo",
		Description:  "echoes input",
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, r.registerTool(tool, noopToolHandler))

	require.True(t, r.removeTool("echo"))
	require.False(t, r.removeTool("echo"), "removing an already-removed tool reports false")
	require.Empty(t, r.listTools())
}

func TestRegistryValidateToolCallRejectsUnknownTool(t *testing.T) {
	r := newTestRegistry()
	_, err := r.validateToolCall("missing", nil)
	require.Error(t, err)
}

func TestRegistryValidateToolCallEnforcesInputSchema(t *testing.T) {
	r := newTestRegistry()
	tool := protocol.Tool{
		Name:         "echo",
		Description:  "echoes input",
		InputSchema:  echoInputSchema(),
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, r.registerTool(tool, noopToolHandler))

	_, err := r.validateToolCall("echo", map[string]interface{}{})
	require.Error(t, err, "missing required 'text' argument must fail schema validation")

	_, err = r.validateToolCall("echo", map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
}

func TestRegistryRegisterResourceRequiresURI(t *testing.T) {
	r := newTestRegistry()
	err := r.registerResource(protocol.Resource{Name: "nameless"}, nil)
	require.Error(t, err)
}

func TestRegistryResourceLifecycle(t *testing.T) {
	r := newTestRegistry()
	res := protocol.Resource{URI: "mcprt://demo/a.txt", Name: "a.txt"}
	require.NoError(t, r.registerResource(res, nil))

	got, ok := r.resource(res.URI)
	require.True(t, ok)
	require.Equal(t, res.URI, got.resource.URI)

	require.Len(t, r.listResources(), 1)
	require.True(t, r.removeResource(res.URI))
	require.False(t, r.removeResource(res.URI))
	require.Empty(t, r.listResources())
}

func TestRegistryTemplateLifecycle(t *testing.T) {
	r := newTestRegistry()
	tmpl := protocol.ResourceTemplate{URITemplate: "mcprt://demo/{name}", Name: "demo"}
	require.NoError(t, r.registerTemplate(tmpl, nil))

	templates := r.listTemplates()
	require.Len(t, templates, 1)

	snap := r.templatesSnapshot()
	require.Contains(t, snap, tmpl.URITemplate)
}

func TestRegistryRegisterPromptRejectsReservedName(t *testing.T) {
	r := newTestRegistry()
	err := r.registerPrompt(protocol.Prompt{Name: protocol.MethodPromptsGet}, nil)
	require.Error(t, err)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, ReasonReservedName, regErr.Reason)
}

func TestRegistryPromptLifecycle(t *testing.T) {
	r := newTestRegistry()
	p := protocol.Prompt{Name: "greeting"}
	require.NoError(t, r.registerPrompt(p, nil))

	got, ok := r.prompt("greeting")
	require.True(t, ok)
	require.Equal(t, "greeting", got.prompt.Name)

	require.Len(t, r.listPrompts(), 1)
	require.True(t, r.removePrompt("greeting"))
	require.False(t, r.removePrompt("greeting"))
}
