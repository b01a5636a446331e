// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil bridges oops errors to structured logs and test assertions.
package errutil

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code is added as
// "code" and the merged context as a "context" group, so handler-level
// redaction sees each context key.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at warn level, for best-effort failures.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelWarn, msg, err, attrs)
}

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code := oopsErr.Code(); code != nil {
		return fmt.Sprint(code)
	}
	return ""
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs []any) {
	if err == nil {
		logger.Log(ctx, level, msg, attrs...)
		return
	}

	attrs = append(attrs, "error", err.Error())
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if group := contextGroup(oopsErr.Context()); len(group) > 0 {
			attrs = append(attrs, slog.Group("context", group...))
		}
	}
	logger.Log(ctx, level, msg, attrs...)
}

func contextGroup(values map[string]any) []any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, values[k]))
	}
	return group
}
