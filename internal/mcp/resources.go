package mcp

import (
	"context"
	"encoding/json"
	"strings"
)

// Resource describes a readable view.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

// ResourceTemplate describes a parameterized view.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

const recordPrefix = "psurops://records/"

// staticResources maps each fixed URI to the read operation behind it.
var staticResources = []struct {
	Resource
	operation string
}{
	{Resource{URI: "psurops://stats", Name: "Schedule statistics", Description: "Counts by status, class and writer", MimeType: "application/json"}, "get_stats"},
	{Resource{URI: "psurops://overdue", Name: "Overdue reports", Description: "Reports past their due date and not complete", MimeType: "application/json"}, "list_overdue_items"},
	{Resource{URI: "psurops://due-soon", Name: "Due in 30 days", Description: "Reports due within the next 30 days", MimeType: "application/json"}, "list_due_items"},
	{Resource{URI: "psurops://missing", Name: "Incomplete rows", Description: "Rows lacking required fields", MimeType: "application/json"}, "list_missing_fields"},
}

func resourceList() []Resource {
	out := make([]Resource, len(staticResources))
	for i, r := range staticResources {
		out[i] = r.Resource
	}
	return out
}

func resourceTemplates() []ResourceTemplate {
	return []ResourceTemplate{{
		URITemplate: recordPrefix + "{td_number}",
		Name:        "Report rows",
		Description: "Every row stored under a TD number",
		MimeType:    "application/json",
	}}
}

// resolveResource maps a URI to an operation call.
func resolveResource(uri string) (string, map[string]interface{}, bool) {
	for _, r := range staticResources {
		if r.URI == uri {
			return r.operation, nil, true
		}
	}
	if id := strings.TrimPrefix(uri, recordPrefix); id != uri && id != "" {
		return "get_all_duplicates", map[string]interface{}{"td_number": id}, true
	}
	return "", nil, false
}

func (s *MCPServer) handleReadResource(ctx context.Context, id interface{}, params map[string]interface{}) *MCPMessage {
	uri, _ := params["uri"].(string)
	op, args, ok := resolveResource(uri)
	if !ok {
		return NewErrorMessage(id, InvalidParams, "Unknown resource: "+uri, nil)
	}
	resp := s.d.Call(ctx, op, args)
	if !resp.OK() {
		return NewErrorMessage(id, InternalError, "resource read failed", resp)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return NewErrorMessage(id, InternalError, err.Error(), nil)
	}
	return NewResultMessage(id, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"uri": uri, "mimeType": "application/json", "text": string(data)},
		},
	})
}
