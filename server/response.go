package server

import (
	"encoding/json"
	"net/http"

	"minifm/logger"
)

// ApiResponse is the JSON envelope used by all catalog and identity
// endpoints. code 0 means success; errors carry a domain code in-body while
// the HTTP status stays 200 (streaming endpoints answer with raw statuses
// instead, they never return this envelope).
type ApiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, resp ApiResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, ApiResponse{Code: 0, Message: "success", Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, ApiResponse{Code: code, Message: message})
}
