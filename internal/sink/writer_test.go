package sink

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
)

func newMockSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })

	return &Sink{
		db:     sqlx.NewDb(rawDB, "postgres"),
		logger: zap.NewNop(),
		queue:  make(chan writeRequest, 10),
		stopCh: make(chan struct{}),
	}, mock
}

func TestSaveUsageRowInsertsRecord(t *testing.T) {
	s, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO llm_usage_records").WillReturnResult(sqlmock.NewResult(1, 1))

	row := usageRowFrom(llmrouter.UsageRecord{
		Tenant:       "acme",
		Agent:        "planner",
		Provider:     llmrouter.ProviderOpenAI,
		Model:        "gpt-5",
		PromptTokens: 10,
		OutputTokens: 20,
		Cost:         0.01,
		At:           time.Now(),
	})

	if err := s.saveUsageRow(context.Background(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveTransitionRowInsertsRecord(t *testing.T) {
	s, mock := newMockSink(t)

	mock.ExpectExec("INSERT INTO fallback_transitions").WillReturnResult(sqlmock.NewResult(1, 1))

	row := transitionRowFrom(fallback.Transition{
		Service:  "search",
		FromMode: fallback.ModeCloud,
		ToMode:   fallback.ModeLocal,
		Strategy: fallback.StrategyImmediate,
		At:       time.Now(),
		Reason:   "breaker open",
		Success:  true,
	})

	if err := s.saveTransitionRow(context.Background(), row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordUsageProcessesThroughQueue(t *testing.T) {
	s, mock := newMockSink(t)
	mock.ExpectExec("INSERT INTO llm_usage_records").WillReturnResult(sqlmock.NewResult(1, 1))

	s.RecordUsage(llmrouter.UsageRecord{Tenant: "acme", Provider: llmrouter.ProviderLocal, Model: "local-7b", At: time.Now()})

	select {
	case req := <-s.queue:
		s.process(req)
	case <-time.After(time.Second):
		t.Fatal("expected a queued write request")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	s, _ := newMockSink(t)
	s.queue = make(chan writeRequest) // unbuffered, nothing draining it

	s.RecordUsage(llmrouter.UsageRecord{Tenant: "acme", At: time.Now()})

	if got := s.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped record, got %d", got)
	}
}
