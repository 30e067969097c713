package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"psurops/internal/dispatch"
)

// handleMessage processes an incoming MCP message and returns a response
func (s *MCPServer) handleMessage(ctx context.Context, msg *MCPMessage) *MCPMessage {
	if msg.Jsonrpc != "2.0" {
		return NewErrorMessage(msg.Id, InvalidRequest, "jsonrpc must be \"2.0\"", nil)
	}
	if msg.IsRequest() {
		return s.handleRequest(ctx, msg)
	}
	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}
	// Responses to server requests are not expected; drop them.
	if msg.Id != nil && msg.Method == "" && (msg.Result != nil || msg.Error != nil) {
		s.logger.Debug("Ignoring client response", "id", msg.Id)
		return nil
	}
	return NewErrorMessage(msg.Id, InvalidRequest, "Invalid message: not a request or notification", nil)
}

// handleRequest handles a JSON-RPC request
func (s *MCPServer) handleRequest(ctx context.Context, msg *MCPMessage) *MCPMessage {
	s.logger.Debug("Handling request", "method", msg.Method, "id", msg.Id)

	params, _ := msg.Params.(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
	}

	switch msg.Method {
	case "initialize":
		return NewResultMessage(msg.Id, s.handleInitialize(params))
	case "ping":
		return NewResultMessage(msg.Id, map[string]interface{}{})
	case "tools/list":
		return NewResultMessage(msg.Id, map[string]interface{}{"tools": s.d.Operations()})
	case "tools/call":
		return s.handleCallTool(ctx, msg.Id, params)
	case "resources/list":
		return NewResultMessage(msg.Id, map[string]interface{}{
			"resources":         resourceList(),
			"resourceTemplates": resourceTemplates(),
		})
	case "resources/read":
		return s.handleReadResource(ctx, msg.Id, params)
	default:
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method), nil)
	}
}

// handleNotification handles a JSON-RPC notification
func (s *MCPServer) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		s.logger.Info("Client initialized")
	case "notifications/cancelled":
		s.logger.Debug("Client cancelled a request")
	default:
		s.logger.Debug("Unknown notification", "method", msg.Method)
	}
}

// handleCallTool runs one operation. Dispatcher failures are tool results
// with isError set, not protocol errors, so the agent sees the error body.
func (s *MCPServer) handleCallTool(ctx context.Context, id interface{}, params map[string]interface{}) *MCPMessage {
	name, ok := params["name"].(string)
	if !ok || name == "" {
		return NewErrorMessage(id, InvalidParams, "Invalid params: name required", nil)
	}
	var args map[string]interface{}
	switch a := params["arguments"].(type) {
	case map[string]interface{}:
		args = a
	case nil:
		args = map[string]interface{}{}
	default:
		return NewErrorMessage(id, InvalidParams, "Invalid params: arguments must be an object", nil)
	}

	s.logger.Info("Calling tool", "tool", name)
	resp := s.d.Call(ctx, name, args)
	result, err := toolResult(resp)
	if err != nil {
		return NewErrorMessage(id, InternalError, err.Error(), nil)
	}
	return NewResultMessage(id, result)
}

func toolResult(resp dispatch.Response) (map[string]interface{}, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(data)},
		},
		"isError": !resp.OK(),
	}, nil
}
