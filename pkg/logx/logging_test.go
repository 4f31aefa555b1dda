package logx

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestSampledLoggerDropsOverBudget(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").Sampled(rate.NewLimiter(0, 2))

	for i := 0; i < 5; i++ {
		log.Debug("scroll", Int("i", i))
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("lines = %d, want 2\n%s", got, buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn").With(String("comp", "test"))

	log.Info("hidden")
	log.Warn("shown", Int("n", 1))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked: %s", out)
	}
	if !strings.Contains(out, `"comp":"test"`) || !strings.Contains(out, `"n":1`) {
		t.Fatalf("missing fields: %s", out)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	Nop().Warn("still nothing")
}
