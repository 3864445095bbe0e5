package protocol

// MCP payload types: tool schemas, capabilities, handshake shapes, and
// the content-block result of tools/call.

// ToolParameter describes one argument of a tool.
type ToolParameter struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// ToJSONSchema renders the parameter as a JSON Schema property.
func (p ToolParameter) ToJSONSchema() map[string]interface{} {
	schema := map[string]interface{}{
		"type":        p.Type,
		"description": p.Description,
	}
	if p.Default != nil {
		schema["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	return schema
}

// ToolDefinition is the immutable description of a registered tool.
type ToolDefinition struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Parameters    []ToolParameter `json:"parameters"`
	Category      string          `json:"category"`
	RequiresAuth  bool            `json:"requires_auth"`
	IsDestructive bool            `json:"is_destructive"`
}

// ToMCPSchema renders the definition as an MCP tool descriptor with a
// JSON-Schema-shaped inputSchema.
func (d ToolDefinition) ToMCPSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))

	for _, param := range d.Parameters {
		properties[param.Name] = param.ToJSONSchema()
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]interface{}{
		"name":        d.Name,
		"description": d.Description,
		"inputSchema": map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// ToolResult is the outcome of a tool execution. Exactly one of
// Data/Error is meaningful depending on Success.
type ToolResult struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// OK creates a successful result.
func OK(data interface{}) *ToolResult {
	return &ToolResult{Success: true, Data: data, Metadata: map[string]interface{}{}}
}

// Fail creates a failed result.
func Fail(errMsg string) *ToolResult {
	return &ToolResult{Success: false, Error: errMsg, Metadata: map[string]interface{}{}}
}

// Capabilities advertises what this server supports.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	Platform        string       `json:"platform"`
}

// InitializeResult is the reply to the initialize request.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ContentBlock is one element of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the structurally valid tools/call reply shape; a
// failing tool produces IsError=true, never a transport-level error.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// TextResult creates a successful text result.
func TextResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: false,
	}
}

// ErrorResult creates a failed text result.
func ErrorResult(message string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: message}},
		IsError: true,
	}
}

// ToolsListResult is the reply to tools/list.
type ToolsListResult struct {
	Tools []map[string]interface{} `json:"tools"`
}
