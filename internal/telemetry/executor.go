// Package telemetry wraps every outbound AI-provider and gateway call with
// timing, outcome classification, and an append-only CallRecord stream.
// The stream is write-only observability: nothing in the orchestration path
// reads it back, and a sink failure never breaks the wrapped call.
package telemetry

import (
	"context"
	"strings"
	"time"

	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

// Status classifies the outcome of a wrapped call.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusRateLimited Status = "rate_limited"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
)

// maxErrorMessageLen bounds the stored error message.
const maxErrorMessageLen = 500

// Call identifies who is making an external call and through what.
type Call struct {
	OwnerID   uuid.UUID
	Source    string
	AgentID   *uuid.UUID
	ModelName string
	Metadata  map[string]any
}

// Result is what a wrapped call returns. Token counts are optional; gateway
// calls leave them zero.
type Result struct {
	Value     any
	TokensIn  int
	TokensOut int
}

// Record is one CallRecord row, mirrored 1:1 by the repository insert.
type Record struct {
	OwnerID      uuid.UUID
	Source       string
	AgentID      *uuid.UUID
	ModelName    string
	TokensIn     int
	TokensOut    int
	ElapsedMs    int64
	Status       Status
	ErrorMessage string
	Metadata     map[string]any
}

// Sink receives call records. The pgx-backed Repository is the production
// implementation.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Executor runs external calls and emits exactly one Record per invocation.
type Executor struct {
	sink Sink
	log  *logger.Logger
}

// NewExecutor creates an Executor writing to the given sink.
func NewExecutor(sink Sink, log *logger.Logger) *Executor {
	return &Executor{sink: sink, log: log}
}

// Execute invokes fn, records the outcome, and returns fn's result and error
// untouched. Recording is best-effort: a sink failure is logged and
// discarded so observability never masks or aborts business logic.
func (x *Executor) Execute(ctx context.Context, call Call, fn func(ctx context.Context) (Result, error)) (Result, error) {
	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start).Milliseconds()

	rec := Record{
		OwnerID:   call.OwnerID,
		Source:    call.Source,
		AgentID:   call.AgentID,
		ModelName: call.ModelName,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		ElapsedMs: elapsed,
		Status:    StatusSuccess,
		Metadata:  call.Metadata,
	}
	if err != nil {
		rec.Status = Classify(err)
		rec.ErrorMessage = truncate(err.Error(), maxErrorMessageLen)
	}

	if x.sink != nil {
		if sinkErr := x.sink.Append(ctx, rec); sinkErr != nil {
			x.log.Warn("call record append failed", "source", call.Source, "error", sinkErr)
		}
	}

	return result, err
}

// Classify maps an error message onto the telemetry status taxonomy.
func Classify(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return StatusRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return StatusTimeout
	default:
		return StatusError
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
