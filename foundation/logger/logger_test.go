package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/ardanlabs/llamactx/foundation/logger"
)

func Test_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelWarn, "TEST", nil)

	ctx := context.Background()
	log.Debug(ctx, "debug")
	log.Info(ctx, "info")

	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn(ctx, "warn", "key", "value")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %s: %s", err, buf.String())
	}

	if rec["msg"] != "warn" {
		t.Errorf("msg: got %v, exp warn", rec["msg"])
	}

	if rec["key"] != "value" {
		t.Errorf("key: got %v, exp value", rec["key"])
	}

	if rec["service"] != "TEST" {
		t.Errorf("service: got %v, exp TEST", rec["service"])
	}

	if _, exists := rec["file"]; !exists {
		t.Errorf("expected the file attribute in %s", buf.String())
	}
}

func Test_TraceID(t *testing.T) {
	var buf bytes.Buffer
	traceIDFn := func(context.Context) string { return "abc-123" }
	log := logger.New(&buf, logger.LevelInfo, "TEST", traceIDFn)

	log.Info(context.Background(), "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %s: %s", err, buf.String())
	}

	if rec["trace_id"] != "abc-123" {
		t.Errorf("trace_id: got %v, exp abc-123", rec["trace_id"])
	}
}

func Test_Events(t *testing.T) {
	var got []logger.Record
	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			got = append(got, r)
		},
	}

	var buf bytes.Buffer
	log := logger.NewWithEvents(&buf, logger.LevelInfo, "TEST", nil, events)

	ctx := context.Background()
	log.Info(ctx, "fine")
	log.Error(ctx, "broken", "answer", 42)

	if len(got) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(got))
	}

	if got[0].Message != "broken" {
		t.Errorf("message: got %q, exp broken", got[0].Message)
	}

	if got[0].Level != logger.LevelError {
		t.Errorf("level: got %v, exp %v", got[0].Level, logger.LevelError)
	}
}

func Test_Discard(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelDebug, "TEST", nil)

	// Nothing to observe, it must simply not panic.
	log.Error(context.Background(), "dropped")
}

func Test_ParseLevel(t *testing.T) {
	table := map[string]logger.Level{
		"debug":   logger.LevelDebug,
		"info":    logger.LevelInfo,
		"warning": logger.LevelWarn,
		"ERROR":   logger.LevelError,
		"bogus":   logger.LevelInfo,
	}

	for in, exp := range table {
		if got := logger.ParseLevel(in); got != exp {
			t.Errorf("%s: got %v, exp %v", in, got, exp)
		}
	}
}
