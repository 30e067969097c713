package mcp

// ServerCapabilities represents the capabilities exposed by the MCP server
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Logging   *struct{}            `json:"logging,omitempty"`
}

// ToolsCapability represents the tools capability
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability represents the resources capability
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

// ServerInfo identifies the server to the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult represents the result of the initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

const instructions = "Tracks the PSUR schedule. Identifiers like \"td 45\" are normalized to TD045. " +
	"Due dates are derived from the period end and cannot be written. " +
	"Call list_operations or tools/list for the full vocabulary."

func (s *MCPServer) handleInitialize(params map[string]interface{}) *InitializeResult {
	client := ""
	if info, ok := params["clientInfo"].(map[string]interface{}); ok {
		client, _ = info["name"].(string)
	}
	s.mu.Lock()
	s.clientName = client
	s.mu.Unlock()
	s.logger.Info("MCP server initializing", "client", client)

	caps := ServerCapabilities{
		Tools:     &ToolsCapability{},
		Resources: &ResourcesCapability{},
	}
	if s.notifier != nil {
		caps.Logging = &struct{}{}
	}
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      ServerInfo{Name: "psurops", Version: s.version},
		Instructions:    instructions,
	}
}
