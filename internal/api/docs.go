package api

import (
    _ "embed"
    "encoding/json"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIDoc []byte

// OpenAPIHandler serves the OpenAPI document as YAML.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(openAPIDoc)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
    var obj map[string]any
    if err := yaml.Unmarshal(openAPIDoc, &obj); err != nil {
        writeProblem(w, http.StatusInternalServerError, "OpenAPI parse failed", err.Error(), r.URL.Path)
        return
    }
    js, err := json.Marshal(obj)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "OpenAPI encode failed", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(js)
}
