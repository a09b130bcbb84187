package tracing

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func restoreProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSpans(t *testing.T) {
	restoreProvider(t)
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter("euterpe", "test", exporter)
	if err != nil {
		t.Fatalf("InitWithExporter failed: %v", err)
	}
	defer shutdown(context.Background())

	ctx, parent := StartSpan(context.Background(), "corpus.build", trace.SpanKindInternal)
	parent.SetString("corpus_id", "c1").SetInt("files", 3).SetFloat("entropy", 1.5)
	_, child := StartSpan(ctx, "harmony.chordify", trace.SpanKindInternal)
	End(child, errors.New("bad midi"))
	End(parent, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	c, p := spans[0], spans[1]
	if c.Name != "harmony.chordify" || p.Name != "corpus.build" {
		t.Fatalf("unexpected span order %s, %s", c.Name, p.Name)
	}
	if c.Parent.SpanID() != p.SpanContext.SpanID() {
		t.Error("child span is not parented")
	}
	if c.Status.Code != codes.Error || c.Status.Description != "bad midi" {
		t.Errorf("child status = %+v", c.Status)
	}
	if len(p.Attributes) != 3 {
		t.Errorf("parent attributes = %v", p.Attributes)
	}
}

func TestSetHTTPStatus(t *testing.T) {
	restoreProvider(t)
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter("euterpe", "test", exporter)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())

	for _, code := range []int{200, 404, 500} {
		_, s := StartSpan(context.Background(), "http", trace.SpanKindServer)
		s.SetHTTPStatus(code)
		End(s, nil)
	}
	spans := exporter.GetSpans()
	want := []codes.Code{codes.Ok, codes.Error, codes.Error}
	for i, s := range spans {
		if s.Status.Code != want[i] {
			t.Errorf("span %d status = %v, want %v", i, s.Status.Code, want[i])
		}
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	var s *Span
	s.SetString("k", "v").SetInt("n", 1).SetFloat("f", 1)
	s.SetHTTPStatus(200)
	End(s, errors.New("ignored"))
}

func TestInitWithWriter(t *testing.T) {
	restoreProvider(t)
	var buf bytes.Buffer
	shutdown, err := InitWithWriter("euterpe", "test", &buf)
	if err != nil {
		t.Fatalf("InitWithWriter failed: %v", err)
	}
	_, s := StartSpan(context.Background(), "analyze", trace.SpanKindInternal)
	End(s, nil)
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"Name":"analyze"`)) {
		t.Errorf("span not exported: %s", buf.String())
	}
}

func TestInit(t *testing.T) {
	restoreProvider(t)
	shutdown, err := Init("euterpe", "test", "")
	if err != nil || shutdown(context.Background()) != nil {
		t.Fatalf("empty output should be a no-op: %v", err)
	}

	path := filepath.Join(t.TempDir(), "traces.json")
	shutdown, err = Init("euterpe", "test", path)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}

	if _, err := Init("euterpe", "test", filepath.Join(t.TempDir(), "no", "such", "dir.json")); err == nil {
		t.Error("expected error for unwritable path")
	}
}
