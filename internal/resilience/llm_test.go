package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mkaiser42/aloud/internal/observe"
	llmmock "github.com/mkaiser42/aloud/pkg/provider/llm/mock"
)

func noSleep(c *LLMClient) { c.sleep = func(time.Duration) {} }

func TestGenerateSuccessFirstTry(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{"hello"}}
	c := WrapLLM(inner)
	noSleep(c)

	got, err := c.Generate(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Generate() = %q, want hello", got)
	}
	if inner.CallCount() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.CallCount())
	}
}

func TestGenerateFallbackAfterBudget(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{GenerateErr: errors.New("connection refused")}
	c := WrapLLM(inner)
	noSleep(c)

	got, err := c.Generate(context.Background(), "p", "")
	if err != nil {
		t.Fatalf("Generate() error = %v, must never error", err)
	}
	if got != DefaultFallback {
		t.Errorf("Generate() = %q, want fallback", got)
	}
	if inner.CallCount() != maxRetries+1 {
		t.Errorf("inner calls = %d, want %d", inner.CallCount(), maxRetries+1)
	}
}

func TestGenerateCustomFallback(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{GenerateErr: errors.New("boom")}
	c := WrapLLM(inner, WithFallback("Sorry, one moment."))
	noSleep(c)

	got, _ := c.Generate(context.Background(), "p", "")
	if got != "Sorry, one moment." {
		t.Errorf("Generate() = %q, want custom fallback", got)
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{GenerateErr: errors.New("boom")}
	c := WrapLLM(inner)
	noSleep(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := c.Generate(ctx, "p", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != DefaultFallback {
		t.Errorf("Generate() = %q, want fallback on cancelled context", got)
	}
	// One initial attempt at most; retries are cut off by the context check.
	if inner.CallCount() > 1 {
		t.Errorf("inner calls = %d after cancel, want at most 1", inner.CallCount())
	}
}

func TestGenerateRecordsCallLatency(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	inner := &llmmock.Client{GenerateErr: errors.New("boom")}
	c := WrapLLM(inner, WithMetrics(m))
	noSleep(c)

	// All attempts fail, so every attempt in the budget is timed.
	if _, err := c.Generate(context.Background(), "p", ""); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	var hist *metricdata.Histogram[float64]
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == "aloud.llm.duration" {
				h, ok := sm.Metrics[i].Data.(metricdata.Histogram[float64])
				if !ok {
					t.Fatal("aloud.llm.duration is not a histogram")
				}
				hist = &h
			}
		}
	}
	if hist == nil || len(hist.DataPoints) == 0 {
		t.Fatal("aloud.llm.duration not recorded")
	}
	if got := hist.DataPoints[0].Count; got != maxRetries+1 {
		t.Errorf("recorded %d calls, want %d (one per attempt)", got, maxRetries+1)
	}
}

func TestCheckConnectionPropagatesError(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{CheckErr: errors.New("unreachable")}
	c := WrapLLM(inner)

	if err := c.CheckConnection(context.Background()); err == nil {
		t.Fatal("CheckConnection() = nil, want error")
	}
}
