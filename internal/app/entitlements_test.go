package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

func TestPaymentToRevealLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{ContactPrice: 5})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	payment, _, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	req, err := env.svc.RequestApproval(ctx, *payment)
	if err != nil {
		t.Fatalf("request approval: %v", err)
	}
	if req.Status != domain.PremiumStatusPending {
		t.Fatalf("expected pending request, got %s", req.Status)
	}

	before, err := env.svc.CanReveal(ctx, Identity{Email: "a@x.com"}, target.BiodataID)
	if err != nil || before {
		t.Fatalf("expected no access before approval, got %t, %v", before, err)
	}

	if _, outcome, err := env.svc.Approve(ctx, payment.PaymentID); err != nil || outcome != OutcomeApproved {
		t.Fatalf("expected approval, got %s, %v", outcome, err)
	}

	payerCan, err := env.svc.CanReveal(ctx, Identity{Email: "a@x.com"}, target.BiodataID)
	if err != nil || !payerCan {
		t.Fatalf("expected payer to see contacts, got %t, %v", payerCan, err)
	}
	strangerCan, err := env.svc.CanReveal(ctx, Identity{Email: "b@x.com"}, target.BiodataID)
	if err != nil || strangerCan {
		t.Fatalf("expected stranger to be denied, got %t, %v", strangerCan, err)
	}
}

func TestRequestApprovalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	payment, _, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	first, err := env.svc.RequestApproval(ctx, *payment)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := env.svc.RequestApproval(ctx, *payment)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if first.RequestID != second.RequestID || first.Status != second.Status {
		t.Fatalf("expected identical requests, got %+v and %+v", first, second)
	}
	all, _ := env.svc.ListRequests(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one stored request, got %d", len(all))
	}
}

func TestApproveTwiceReportsAlreadyApproved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
	req := env.payAndRequest(t, "a@x.com", target.BiodataID)

	first, outcome, err := env.svc.Approve(ctx, req.PaymentID)
	if err != nil || outcome != OutcomeApproved {
		t.Fatalf("expected approved, got %s, %v", outcome, err)
	}
	second, outcome, err := env.svc.Approve(ctx, req.PaymentID)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if outcome != OutcomeAlreadyApproved {
		t.Fatalf("expected already_approved, got %s", outcome)
	}
	if !first.ApprovedAt.Equal(*second.ApprovedAt) {
		t.Fatalf("expected approvedAt to stay %v, got %v", first.ApprovedAt, second.ApprovedAt)
	}

	approved, _ := env.svc.ListApproved(ctx, domain.PremiumRequestFilter{PayerEmail: "a@x.com"})
	if len(approved) != 1 {
		t.Fatalf("expected a single approved record, got %d", len(approved))
	}
	if got := env.publisher.count(rabbitmq.RoutingKeyPremiumApproved); got != 1 {
		t.Fatalf("expected one approval event, got %d", got)
	}
}

func TestApproveUnknownPayment(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, _, err := env.svc.Approve(context.Background(), "missing"); !errors.Is(err, ErrUnknownPayment) {
		t.Fatalf("expected ErrUnknownPayment, got %v", err)
	}
}

func TestApprovePaymentWithoutRequestIsUnknown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	payment, _, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, _, err := env.svc.Approve(ctx, payment.PaymentID); !errors.Is(err, ErrUnknownPayment) {
		t.Fatalf("expected ErrUnknownPayment, got %v", err)
	}
}

func TestConcurrentApprovalsHaveExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
	req := env.payAndRequest(t, "a@x.com", target.BiodataID)

	const workers = 24
	outcomes := make(chan ApprovalOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := env.svc.Approve(ctx, req.PaymentID)
			if err != nil {
				t.Errorf("approve: %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	approvedCount := 0
	for outcome := range outcomes {
		if outcome == OutcomeApproved {
			approvedCount++
		}
	}
	if approvedCount != 1 {
		t.Fatalf("expected exactly one approved outcome, got %d", approvedCount)
	}
}

func TestApproveSecondPaymentForUnlockedPair(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	first := env.unlock(t, "a@x.com", target.BiodataID)
	second := env.payAndRequest(t, "a@x.com", target.BiodataID)

	got, outcome, err := env.svc.Approve(ctx, second.PaymentID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if outcome != OutcomeAlreadyApproved {
		t.Fatalf("expected already_approved, got %s", outcome)
	}
	if got.PaymentID != first.PaymentID {
		t.Fatalf("expected the original approved request, got %s", got.PaymentID)
	}
}

func TestDirectApprovalMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{ApprovalMode: ApprovalModeDirect})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	first := env.payAndRequest(t, "a@x.com", target.BiodataID)
	if !first.IsApproved() || first.ApprovedAt == nil {
		t.Fatalf("expected request to be approved on creation, got %+v", first)
	}

	second := env.payAndRequest(t, "a@x.com", target.BiodataID)
	if second.IsApproved() {
		t.Fatalf("expected second request for an unlocked pair to stay pending")
	}

	_, outcome, err := env.svc.Approve(ctx, first.PaymentID)
	if err != nil || outcome != OutcomeAlreadyApproved {
		t.Fatalf("expected already_approved, got %s, %v", outcome, err)
	}
}

func TestRequestApprovalByPaymentIDChecksCaller(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
	payment, _, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	tests := []struct {
		name    string
		caller  Identity
		id      string
		wantErr error
	}{
		{name: "stranger", caller: Identity{Email: "b@x.com"}, id: payment.PaymentID, wantErr: ErrForbidden},
		{name: "unknown payment", caller: Identity{Email: "a@x.com"}, id: "nope", wantErr: ErrUnknownPayment},
		{name: "payer", caller: Identity{Email: "A@x.com"}, id: payment.PaymentID},
		{name: "admin", caller: Identity{Email: "admin@x.com", IsAdmin: true}, id: payment.PaymentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := env.svc.RequestApprovalByPaymentID(ctx, tt.caller, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.PaymentID != payment.PaymentID {
				t.Fatalf("expected request for %s, got %s", payment.PaymentID, req.PaymentID)
			}
		})
	}
}
