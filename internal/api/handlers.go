package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"psurops/internal/dispatch"
	"psurops/internal/errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ToolRequest is the body of POST /tool.
type ToolRequest struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ClassifyRequest is the body of POST /classify. With Execute set the
// suggested operation is run with the extracted identifiers merged under
// Args.
type ClassifyRequest struct {
	Text    string                 `json:"text"`
	Execute bool                   `json:"execute"`
	Args    map[string]interface{} `json:"args,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeResponse sends a dispatcher response with a status matching its code.
func writeResponse(w http.ResponseWriter, resp dispatch.Response) {
	status := http.StatusOK
	if !resp.OK() {
		status = MapCodeToStatus(resp.Code())
	}
	WriteJSON(w, resp, status)
}

// handleTool runs one dispatcher operation.
func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	var req ToolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		BadRequest(w, "name required")
		return
	}
	writeResponse(w, s.d.Call(r.Context(), req.Name, req.Args))
}

// handleTools lists the operation vocabulary with input schemas.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	ops := s.d.Operations()
	WriteJSON(w, map[string]interface{}{"tools": ops, "count": len(ops)}, http.StatusOK)
}

// handleRecords lists records. offset and limit page the result; every
// other query parameter is passed through as a filter.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	args := map[string]interface{}{}
	filters := map[string]interface{}{}
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "offset", "limit":
			args[key] = values[0]
		default:
			filters[key] = values[0]
		}
	}
	args["filters"] = filters
	writeResponse(w, s.d.Call(r.Context(), "list_reports", args))
}

// handleRecord returns the first record with the identifier, or every
// duplicate with ?all=true.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("identifier")
	if r.URL.Query().Get("all") == "true" {
		writeResponse(w, s.d.Call(r.Context(), "get_all_duplicates", map[string]interface{}{"td_number": id}))
		return
	}
	writeResponse(w, s.d.Call(r.Context(), "get_report", map[string]interface{}{"row_id": id}))
}

// handleStats returns aggregate counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := s.d.Call(r.Context(), "get_stats", nil)
	if total, ok := resp["total"].(int); ok && s.metrics != nil {
		s.metrics.SetRecords(total)
	}
	writeResponse(w, resp)
}

// handleClassify maps free text to an intent and, when asked, runs the
// suggested operation.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.intents.Classify(req.Text)
	out := map[string]interface{}{"ok": true, "classification": res}
	if !req.Execute {
		WriteJSON(w, out, http.StatusOK)
		return
	}
	if res.Operation == "" {
		WriteError(w, errors.NewUnknownOperationError(string(res.Label)).
			WithDetails(map[string]interface{}{"classification": res}), http.StatusNotFound)
		return
	}
	args := res.Args()
	for k, v := range req.Args {
		args[k] = v
	}
	resp := s.d.Call(r.Context(), res.Operation, args)
	resp["classification"] = res
	writeResponse(w, resp)
}

// handleMetrics serves Prometheus metrics when a collector is configured.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}
