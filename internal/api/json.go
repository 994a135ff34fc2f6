package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the RFC 7807 body of every response that carries no
// optimization result: rejected enqueues, unknown problem ids, readiness
// failures and unavailable queue or event stream. Optimize responses use
// the result's own error form instead.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const problemContentType = "application/problem+json"

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, status, "application/json", v)
}

func writeBody(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem answers with a Problem; instance is the request path.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeBody(w, status, problemContentType, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}
