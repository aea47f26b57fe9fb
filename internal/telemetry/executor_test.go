package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
)

type captureSink struct {
	records []Record
	err     error
}

func (s *captureSink) Append(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return s.err
}

func newTestExecutor(sink Sink) *Executor {
	return NewExecutor(sink, logger.New("development"))
}

func TestExecute_SuccessEmitsOneRecord(t *testing.T) {
	sink := &captureSink{}
	exec := newTestExecutor(sink)

	result, err := exec.Execute(context.Background(), Call{OwnerID: uuid.New(), Source: "whatsapp"}, func(context.Context) (Result, error) {
		return Result{Value: "msg-1", TokensIn: 12, TokensOut: 34}, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Value != "msg-1" {
		t.Fatalf("expected result value msg-1, got %v", result.Value)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Status != StatusSuccess {
		t.Fatalf("expected status success, got %s", rec.Status)
	}
	if rec.TokensIn != 12 || rec.TokensOut != 34 {
		t.Fatalf("expected tokens 12/34, got %d/%d", rec.TokensIn, rec.TokensOut)
	}
}

func TestExecute_RateLimitClassificationAndReraise(t *testing.T) {
	sink := &captureSink{}
	exec := newTestExecutor(sink)

	original := errors.New("provider returned HTTP 429 too many requests")
	_, err := exec.Execute(context.Background(), Call{Source: "moonshot"}, func(context.Context) (Result, error) {
		return Result{}, original
	})
	if !errors.Is(err, original) {
		t.Fatalf("expected the original error to be re-raised, got %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(sink.records))
	}
	if sink.records[0].Status != StatusRateLimited {
		t.Fatalf("expected status rate_limited, got %s", sink.records[0].Status)
	}
}

func TestExecute_TimeoutClassification(t *testing.T) {
	sink := &captureSink{}
	exec := newTestExecutor(sink)

	_, err := exec.Execute(context.Background(), Call{Source: "whatsapp"}, func(context.Context) (Result, error) {
		return Result{}, errors.New("context deadline exceeded")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if sink.records[0].Status != StatusTimeout {
		t.Fatalf("expected status timeout, got %s", sink.records[0].Status)
	}
}

func TestExecute_ErrorMessageTruncated(t *testing.T) {
	sink := &captureSink{}
	exec := newTestExecutor(sink)

	long := strings.Repeat("x", 900)
	_, err := exec.Execute(context.Background(), Call{Source: "whatsapp"}, func(context.Context) (Result, error) {
		return Result{}, errors.New(long)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := len(sink.records[0].ErrorMessage); got != maxErrorMessageLen {
		t.Fatalf("expected error message truncated to %d chars, got %d", maxErrorMessageLen, got)
	}
}

func TestExecute_SinkFailureNeverPropagates(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	exec := newTestExecutor(sink)

	result, err := exec.Execute(context.Background(), Call{Source: "whatsapp"}, func(context.Context) (Result, error) {
		return Result{Value: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("sink failure must not propagate, got %v", err)
	}
	if result.Value != "ok" {
		t.Fatalf("expected original result, got %v", result.Value)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record despite sink failure, got %d", len(sink.records))
	}
}

func TestExecute_SinkFailureOnFailedCallKeepsOriginalError(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	exec := newTestExecutor(sink)

	original := errors.New("gateway unreachable")
	_, err := exec.Execute(context.Background(), Call{Source: "whatsapp"}, func(context.Context) (Result, error) {
		return Result{}, original
	})
	if !errors.Is(err, original) {
		t.Fatalf("expected original error, got %v", err)
	}
}
