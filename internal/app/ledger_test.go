package app

import (
	"context"
	"errors"
	"testing"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/pkg/paymentclient"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

func TestRecordValidation(t *testing.T) {
	env := newTestEnv(t, Options{ContactPrice: 5})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	tests := []struct {
		name    string
		payer   string
		target  int64
		amount  int64
		wantErr error
	}{
		{name: "wrong amount", payer: "a@x.com", target: target.BiodataID, amount: 4, wantErr: ErrInvalidAmount},
		{name: "unknown biodata", payer: "a@x.com", target: 999, amount: 5, wantErr: ErrProfileNotFound},
		{name: "own biodata", payer: "owner@x.com", target: target.BiodataID, amount: 5, wantErr: ErrSelfPurchase},
		{name: "missing payer", payer: " ", target: target.BiodataID, amount: 5, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.Record(context.Background(), tt.payer, tt.target, tt.amount, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecordSameProcessorReferenceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	first, created, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "ch_1")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if !created {
		t.Fatalf("expected first record to create a row")
	}
	second, created, err := env.svc.Record(ctx, "A@x.com ", target.BiodataID, 5, "ch_1")
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if created {
		t.Fatalf("expected second record to be a replay")
	}
	if first.PaymentID != "ch_1" || second.PaymentID != first.PaymentID {
		t.Fatalf("expected both records to use ch_1, got %s and %s", first.PaymentID, second.PaymentID)
	}

	entries, err := env.svc.ListPayments(ctx)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(entries))
	}
	if got := env.publisher.count(rabbitmq.RoutingKeyPaymentRecorded); got != 1 {
		t.Fatalf("expected one payment event, got %d", got)
	}
}

func TestRecordReplayForDifferentPurchaseConflicts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	first := env.createProfile(t, "first@x.com", domain.BiodataTypeFemale, 26)
	second := env.createProfile(t, "second@x.com", domain.BiodataTypeFemale, 28)

	if _, _, err := env.svc.Record(ctx, "victim@x.com", first.BiodataID, 5, "ch_123"); err != nil {
		t.Fatalf("record: %v", err)
	}

	tests := []struct {
		name   string
		payer  string
		target int64
	}{
		{name: "other payer same biodata", payer: "attacker@x.com", target: first.BiodataID},
		{name: "other payer other biodata", payer: "attacker@x.com", target: second.BiodataID},
		{name: "same payer other biodata", payer: "victim@x.com", target: second.BiodataID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment, created, err := env.svc.Record(ctx, tt.payer, tt.target, 5, "ch_123")
			if !errors.Is(err, ErrPaymentConflict) {
				t.Fatalf("expected ErrPaymentConflict, got %v", err)
			}
			if payment != nil || created {
				t.Fatalf("expected no payment to be returned, got %+v created=%v", payment, created)
			}
		})
	}

	stored, err := env.repo.GetPayment(ctx, "ch_123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if stored.PayerEmail != "victim@x.com" || stored.TargetBiodataID != first.BiodataID {
		t.Fatalf("expected stored payment untouched, got %+v", stored)
	}
}

func TestListPaymentsPairsRequests(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)

	bare, _, err := env.svc.Record(ctx, "a@x.com", target.BiodataID, 5, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	approved := env.unlock(t, "b@x.com", target.BiodataID)

	entries, err := env.svc.ListPayments(ctx)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	for _, entry := range entries {
		switch entry.Payment.PaymentID {
		case bare.PaymentID:
			if entry.Request != nil {
				t.Fatalf("expected no request for %s", bare.PaymentID)
			}
		case approved.PaymentID:
			if entry.Request == nil || !entry.Request.IsApproved() {
				t.Fatalf("expected approved request for %s, got %+v", approved.PaymentID, entry.Request)
			}
		default:
			t.Fatalf("unexpected payment %s", entry.Payment.PaymentID)
		}
	}
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("charges once and files a pending request", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		processor := &stubProcessor{charge: &paymentclient.Charge{ID: "ch_42", Status: "succeeded"}}
		env.svc.processor = processor

		result, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", "idem-1")
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if result.Payment.PaymentID != "ch_42" || result.Request.PaymentID != "ch_42" {
			t.Fatalf("expected processor charge id as payment id, got %+v", result)
		}
		if result.Request.Status != domain.PremiumStatusPending {
			t.Fatalf("expected pending request, got %s", result.Request.Status)
		}
		if processor.calls != 1 {
			t.Fatalf("expected one processor call, got %d", processor.calls)
		}
	})

	t.Run("processor outage is retryable", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		processor := &stubProcessor{err: paymentclient.ErrUnavailable}
		env.svc.processor = processor

		_, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", "")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
		if processor.calls != 1 {
			t.Fatalf("expected no automatic retry, got %d calls", processor.calls)
		}
		payments, _ := env.svc.ListPayments(ctx)
		if len(payments) != 0 {
			t.Fatalf("expected empty ledger, got %d rows", len(payments))
		}
	})

	t.Run("declined charge", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		env.svc.processor = &stubProcessor{err: paymentclient.ErrDeclined}

		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); !errors.Is(err, ErrPaymentDeclined) {
			t.Fatalf("expected ErrPaymentDeclined, got %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, Options{CheckoutRateLimitPerMinute: 3})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		processor := &stubProcessor{charge: &paymentclient.Charge{ID: "ch_1"}}
		env.svc.processor = processor
		env.svc.limiter = &stubLimiter{count: 4, retryAfter: 17}

		_, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", "")
		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) || !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rateErr.RetryAfterSeconds != 17 {
			t.Fatalf("expected retry after 17s, got %d", rateErr.RetryAfterSeconds)
		}
		if processor.calls != 0 {
			t.Fatalf("expected processor not to be called")
		}
	})

	t.Run("limiter outage fails open", func(t *testing.T) {
		env := newTestEnv(t, Options{CheckoutRateLimitPerMinute: 3})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		env.svc.processor = &stubProcessor{charge: &paymentclient.Charge{ID: "ch_1"}}
		env.svc.limiter = &stubLimiter{err: errors.New("redis down")}

		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); err != nil {
			t.Fatalf("expected checkout to proceed, got %v", err)
		}
	})

	t.Run("pending approval is not charged again", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		processor := &stubProcessor{charge: &paymentclient.Charge{ID: "ch_1", Status: "succeeded"}}
		env.svc.processor = processor

		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); err != nil {
			t.Fatalf("first checkout: %v", err)
		}
		processor.charge = &paymentclient.Charge{ID: "ch_2", Status: "succeeded"}
		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); !errors.Is(err, ErrApprovalPending) {
			t.Fatalf("expected ErrApprovalPending, got %v", err)
		}
		if processor.calls != 1 {
			t.Fatalf("expected one processor call, got %d", processor.calls)
		}

		if _, err := env.svc.Checkout(ctx, "b@x.com", target.BiodataID, "pm_card", ""); err != nil {
			t.Fatalf("expected another payer to check out, got %v", err)
		}
	})

	t.Run("charge id already recorded for another payer", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		if _, _, err := env.svc.Record(ctx, "squatter@x.com", target.BiodataID, 5, "ch_9"); err != nil {
			t.Fatalf("record: %v", err)
		}
		env.svc.processor = &stubProcessor{charge: &paymentclient.Charge{ID: "ch_9", Status: "succeeded"}}

		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); !errors.Is(err, ErrPaymentConflict) {
			t.Fatalf("expected ErrPaymentConflict, got %v", err)
		}
		if _, err := env.repo.GetPremiumRequestByPaymentID(ctx, "ch_9"); err == nil {
			t.Fatalf("expected no premium request to be filed for the squatted charge")
		}
	})

	t.Run("already unlocked", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		target := env.createProfile(t, "owner@x.com", domain.BiodataTypeFemale, 26)
		env.unlock(t, "a@x.com", target.BiodataID)
		processor := &stubProcessor{charge: &paymentclient.Charge{ID: "ch_1"}}
		env.svc.processor = processor

		if _, err := env.svc.Checkout(ctx, "a@x.com", target.BiodataID, "pm_card", ""); !errors.Is(err, ErrAlreadyUnlocked) {
			t.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
		}
		if processor.calls != 0 {
			t.Fatalf("expected processor not to be called")
		}
	})
}
