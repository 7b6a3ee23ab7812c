package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/omniassist/server/metrics"
)

type instrumented struct {
	backend string
	next    Model
}

// Instrument wraps m so every call is timed, counted and debug-logged.
func Instrument(backend string, m Model) Model {
	return &instrumented{backend: backend, next: m}
}

func (i *instrumented) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := i.next.Generate(ctx, req)
	elapsed := time.Since(start)

	metrics.ObserveModelRequest(i.backend, elapsed.Seconds(), err)
	if err != nil {
		slog.Warn("model request failed", "backend", i.backend, "elapsed", elapsed, "error", err)
		return nil, err
	}

	slog.Debug("model request done",
		"backend", i.backend,
		"elapsed", elapsed,
		"structured", req.Schema != "",
		"totalTokens", resp.Usage.TotalTokens)
	return resp, nil
}
