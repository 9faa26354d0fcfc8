// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandlerWithLogger(NewTestLogger(&buf))
	logger := slog.New(handler)

	logger.Info("hello", "user", "u-1", "count", int64(3))

	out := buf.String()
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("missing message, got: %s", out)
	}
	if !strings.Contains(out, `"user":"u-1"`) {
		t.Errorf("missing string attr, got: %s", out)
	}
	if !strings.Contains(out, `"count":3`) {
		t.Errorf("missing int attr, got: %s", out)
	}
}

func TestSlogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandlerWithLogger(NewTestLogger(&buf))
	logger := slog.New(handler).With("service", "ingest")

	logger.Warn("degraded")

	if !strings.Contains(buf.String(), `"service":"ingest"`) {
		t.Errorf("missing pre-configured attr, got: %s", buf.String())
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandlerWithLogger(NewTestLogger(&buf))
	logger := slog.New(handler).WithGroup("db")

	logger.Error("write failed", "table", "observations")

	if !strings.Contains(buf.String(), `"db.table":"observations"`) {
		t.Errorf("expected group-prefixed key, got: %s", buf.String())
	}
}

func TestNewSlogLogger(t *testing.T) {
	if NewSlogLogger() == nil {
		t.Fatal("NewSlogLogger returned nil")
	}
}
