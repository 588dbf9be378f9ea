package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetCachesPerCategory(t *testing.T) {
	SetLogger(zap.NewNop())

	a := Get(CategoryStore)
	b := Get(CategoryStore)
	if a != b {
		t.Error("Get should return the same logger for one category")
	}
	if Get(CategoryRPC) == a {
		t.Error("different categories should get different loggers")
	}
}

func TestCategoryName(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Store("writing %d rows", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "store" {
		t.Errorf("logger name = %q, want store", entries[0].LoggerName)
	}
	if entries[0].Message != "writing 3 rows" {
		t.Errorf("message = %q", entries[0].Message)
	}
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	StoreDebug("quiet")
	Store("loud")

	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1 (debug filtered)", logs.Len())
	}
}

func TestTimerStopWithThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	timer := StartTimer(CategoryLLM, "chat")
	elapsed := timer.StopWithThreshold(time.Hour)
	if elapsed <= 0 {
		t.Error("elapsed should be positive")
	}
	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].Level; got != zap.DebugLevel {
		t.Errorf("under-threshold timer logged at %v, want debug", got)
	}

	timer = StartTimer(CategoryLLM, "chat")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Millisecond)
	last := logs.All()[logs.Len()-1]
	if last.Level != zap.WarnLevel {
		t.Errorf("over-threshold timer logged at %v, want warn", last.Level)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"bogus", "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
