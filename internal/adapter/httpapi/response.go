package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"

	"github.com/eslsoft/spacedrep/internal/adapter/mapping"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(err error) (int, errorBody) {
	code := mapping.CodeOf(err)
	msg := err.Error()
	if code == codes.Internal {
		msg = "internal error"
	}
	return runtime.HTTPStatusFromCode(code), errorBody{Code: code.String(), Message: msg}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	entry := h.logger.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	respondJSON(w, status, body)
}
