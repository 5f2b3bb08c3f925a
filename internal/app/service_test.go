package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/internal/store"
	"github.com/soullink/entitlement-service/pkg/paymentclient"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == routingKey {
			n++
		}
	}
	return n
}

type stubProcessor struct {
	charge *paymentclient.Charge
	err    error
	calls  int
}

func (p *stubProcessor) Charge(ctx context.Context, in paymentclient.ChargeRequest) (*paymentclient.Charge, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.charge, nil
}

type stubLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

type testEnv struct {
	svc       *Service
	repo      *store.MemoryRepository
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	repo := store.NewMemoryRepository()
	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, publisher, nil, nil, logger, opts)

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return &testEnv{svc: svc, repo: repo, publisher: publisher}
}

func (e *testEnv) createProfile(t *testing.T, owner string, biodataType string, age int) domain.Biodata {
	t.Helper()
	profile, created, err := e.svc.SaveOwnBiodata(context.Background(), owner, domain.BiodataInput{
		BiodataType:       biodataType,
		Name:              "Profile of " + owner,
		Age:               age,
		PermanentDivision: "Dhaka",
		ContactEmail:      "contact." + owner,
		MobileNumber:      "+8801700000000",
	})
	if err != nil {
		t.Fatalf("failed to create profile for %s: %v", owner, err)
	}
	if !created {
		t.Fatalf("expected a new profile for %s", owner)
	}
	return *profile
}

func (e *testEnv) payAndRequest(t *testing.T, payer string, biodataID int64) domain.PremiumRequest {
	t.Helper()
	ctx := context.Background()
	payment, _, err := e.svc.Record(ctx, payer, biodataID, e.svc.ContactPrice(), "")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	req, err := e.svc.RequestApproval(ctx, *payment)
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}
	return *req
}

func (e *testEnv) unlock(t *testing.T, payer string, biodataID int64) domain.PremiumRequest {
	t.Helper()
	req := e.payAndRequest(t, payer, biodataID)
	approved, outcome, err := e.svc.Approve(context.Background(), req.PaymentID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if outcome != OutcomeApproved {
		t.Fatalf("expected fresh approval, got %s", outcome)
	}
	return *approved
}
