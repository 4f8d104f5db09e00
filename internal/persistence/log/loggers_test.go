package log

import (
	"os"
	"path/filepath"
	"testing"

	"lostfound.gg/internal/sim/world"
)

func TestEventLogger_WriteAndReadSegment(t *testing.T) {
	dir := t.TempDir()
	var failures []error
	l := NewEventLogger(dir, func(err error) { failures = append(failures, err) })

	events := []world.LogEvent{
		{Ts: 1000, Type: "join", Map: "town", Player: 0, Name: "ada"},
		{Ts: 2000, Type: "gather", Map: "town", Player: 0, Item: 3},
		{Ts: 3000, Type: "handover", Map: "town", Player: 0, Office: "o1", Score: 10},
	}
	for _, ev := range events {
		l.Record(ev)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("write failures: %v", failures)
	}

	segments, err := filepath.Glob(filepath.Join(dir, "events", "events-*.jsonl.zst"))
	if err != nil || len(segments) != 1 {
		t.Fatalf("segments = %v, %v", segments, err)
	}

	got, err := ReadSegment(segments[0])
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("events = %d, want %d", len(got), len(events))
	}
	for i, ev := range events {
		if got[i] != ev {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], ev)
		}
	}
}

func TestEventLogger_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	l := NewEventLogger(dir, nil)
	l.Record(world.LogEvent{Ts: 1, Type: "join", Map: "town", Name: "ada"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l = NewEventLogger(dir, nil)
	l.Record(world.LogEvent{Ts: 2, Type: "retire", Map: "town", Name: "ada"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments, err := filepath.Glob(filepath.Join(dir, "events", "events-*.jsonl.zst"))
	if err != nil || len(segments) == 0 {
		t.Fatalf("segments = %v, %v", segments, err)
	}
	var total int
	for _, seg := range segments {
		evs, err := ReadSegment(seg)
		if err != nil {
			t.Fatalf("ReadSegment(%s): %v", seg, err)
		}
		total += len(evs)
	}
	if total != 2 {
		t.Fatalf("events across segments = %d, want 2", total)
	}
}

func TestEventLogger_ReportsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "events")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var failures []error
	l := NewEventLogger(dir, func(err error) { failures = append(failures, err) })
	l.Record(world.LogEvent{Ts: 1, Type: "join"})
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", failures)
	}
}
