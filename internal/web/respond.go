// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/holomush/authcore/pkg/errutil"
)

const timeLayout = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError writes the status text as {"error": ...}.
func writeError(w http.ResponseWriter, status int) {
	writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.LogError(r.Context(), s.logger, "request failed", err,
		"method", r.Method,
		"path", r.URL.Path)
	writeError(w, http.StatusInternalServerError)
}
