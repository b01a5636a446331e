// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Redacted replaces the value of every masked attribute.
const Redacted = "***"

// RedactedKeys lists attribute keys whose values never reach a sink.
// Matching is case-insensitive.
var RedactedKeys = []string{
	"email",
	"password",
	"new_password",
	"password_hash",
	"session_id",
	"session_token",
	"reset_token",
	"token",
	"authorization",
}

// redactHandler masks sensitive attributes, including those nested in groups
// and those added through WithAttrs.
type redactHandler struct {
	handler slog.Handler
	keys    map[string]struct{}
}

// NewRedactHandler wraps h so that attributes listed in RedactedKeys are
// replaced with Redacted.
func NewRedactHandler(h slog.Handler) slog.Handler {
	keys := make(map[string]struct{}, len(RedactedKeys))
	for _, k := range RedactedKeys {
		keys[strings.ToLower(k)] = struct{}{}
	}
	return &redactHandler{handler: h, keys: keys}
}

// Handle rewrites the record's attributes before passing it on.
func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, out)
}

// Enabled returns true if the level is enabled.
func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes, masked.
func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redact(a)
	}
	return &redactHandler{handler: h.handler.WithAttrs(masked), keys: h.keys}
}

// WithGroup returns a new handler with the given group.
func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{handler: h.handler.WithGroup(name), keys: h.keys}
}

func (h *redactHandler) redact(a slog.Attr) slog.Attr {
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: v}
	}
	group := v.Group()
	masked := make([]any, len(group))
	for i, g := range group {
		masked[i] = h.redact(g)
	}
	return slog.Group(a.Key, masked...)
}
