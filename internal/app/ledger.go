package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/internal/store"
	"github.com/soullink/entitlement-service/pkg/paymentclient"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

const checkoutRateLimitScope = "checkout"

// CheckoutResult is what a completed checkout produced.
type CheckoutResult struct {
	Payment domain.Payment        `json:"payment"`
	Request domain.PremiumRequest `json:"request"`
}

// Record appends a payment to the ledger and reports whether a new row was written.
// A processorRef already on the ledger is a replay: the stored payment is returned
// when it describes the same purchase and ErrPaymentConflict otherwise.
func (s *Service) Record(ctx context.Context, payerEmail string, targetBiodataID int64, amount int64, processorRef string) (*domain.Payment, bool, error) {
	payerEmail = normalizeEmail(payerEmail)
	processorRef = strings.TrimSpace(processorRef)

	if payerEmail == "" || targetBiodataID <= 0 {
		return nil, false, fmt.Errorf("%w: payer email and target biodata id are required", ErrInvalidInput)
	}
	if amount != s.contactPrice {
		return nil, false, ErrInvalidAmount
	}

	if processorRef != "" {
		existing, err := s.repo.GetPayment(ctx, processorRef)
		if err == nil {
			return s.replayedPayment(existing, payerEmail, targetBiodataID, amount)
		}
		if !errors.Is(err, store.ErrPaymentNotFound) {
			return nil, false, fmt.Errorf("failed to look up payment: %w", err)
		}
	}

	target, err := s.repo.GetBiodata(ctx, targetBiodataID)
	if err != nil {
		return nil, false, profileError(err)
	}
	if normalizeEmail(target.OwnerEmail) == payerEmail {
		return nil, false, ErrSelfPurchase
	}

	payment := &domain.Payment{
		PaymentID:       processorRef,
		PayerEmail:      payerEmail,
		TargetBiodataID: targetBiodataID,
		Amount:          amount,
		Currency:        s.currency,
	}
	if processorRef == "" {
		payment.PaymentID = uuid.NewString()
	} else {
		ref := processorRef
		payment.ProcessorReference = &ref
	}

	created, err := s.repo.InsertPayment(ctx, payment)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record payment: %w", err)
	}
	if !created {
		// Lost the insert race; payment now holds the stored row.
		return s.replayedPayment(payment, payerEmail, targetBiodataID, amount)
	}

	s.logger.Info("payment recorded", "payment_id", payment.PaymentID, "payer", payment.PayerEmail, "biodata_id", payment.TargetBiodataID)
	s.publishEvent(ctx, rabbitmq.RoutingKeyPaymentRecorded, rabbitmq.PaymentRecordedEvent{
		PaymentID:       payment.PaymentID,
		PayerEmail:      payment.PayerEmail,
		TargetBiodataID: payment.TargetBiodataID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Timestamp:       payment.CreatedAt,
	})
	return payment, true, nil
}

func (s *Service) replayedPayment(existing *domain.Payment, payerEmail string, targetBiodataID, amount int64) (*domain.Payment, bool, error) {
	if existing.PayerEmail != payerEmail || existing.TargetBiodataID != targetBiodataID || existing.Amount != amount {
		s.logger.Warn("payment reference replayed for a different purchase",
			"payment_id", existing.PaymentID,
			"recorded_payer", existing.PayerEmail,
			"recorded_biodata_id", existing.TargetBiodataID,
			"payer", payerEmail,
			"biodata_id", targetBiodataID,
		)
		return nil, false, ErrPaymentConflict
	}
	return existing, false, nil
}

// ListPayments returns the whole ledger, each row paired with its premium request if one exists.
func (s *Service) ListPayments(ctx context.Context) ([]domain.LedgerEntry, error) {
	payments, err := s.repo.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	requests, err := s.repo.ListPremiumRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list premium requests: %w", err)
	}

	byPayment := make(map[string]domain.PremiumRequest, len(requests))
	for _, req := range requests {
		byPayment[req.PaymentID] = req
	}

	entries := make([]domain.LedgerEntry, 0, len(payments))
	for _, p := range payments {
		entry := domain.LedgerEntry{Payment: p}
		if req, ok := byPayment[p.PaymentID]; ok {
			r := req
			entry.Request = &r
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Checkout charges the payer once through the processor, records the payment under the
// processor's charge id and files the premium request. The charge is never retried here.
// A pair that is already unlocked, or still awaiting approval, is refused before charging.
func (s *Service) Checkout(ctx context.Context, payerEmail string, targetBiodataID int64, paymentMethodID, idempotencyKey string) (*CheckoutResult, error) {
	payerEmail = normalizeEmail(payerEmail)
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if payerEmail == "" || targetBiodataID <= 0 || paymentMethodID == "" {
		return nil, fmt.Errorf("%w: payer, biodata id and payment method are required", ErrInvalidInput)
	}

	if err := s.consumeCheckoutAllowance(ctx, payerEmail); err != nil {
		return nil, err
	}

	target, err := s.repo.GetBiodata(ctx, targetBiodataID)
	if err != nil {
		return nil, profileError(err)
	}
	if normalizeEmail(target.OwnerEmail) == payerEmail {
		return nil, ErrSelfPurchase
	}
	if _, err := s.repo.FindApprovedPremiumRequest(ctx, payerEmail, targetBiodataID); err == nil {
		return nil, ErrAlreadyUnlocked
	} else if !errors.Is(err, store.ErrPremiumRequestNotFound) {
		return nil, fmt.Errorf("failed to check existing access: %w", err)
	}
	if _, err := s.repo.FindPendingPremiumRequest(ctx, payerEmail, targetBiodataID); err == nil {
		return nil, ErrApprovalPending
	} else if !errors.Is(err, store.ErrPremiumRequestNotFound) {
		return nil, fmt.Errorf("failed to check pending requests: %w", err)
	}

	if s.processor == nil {
		return nil, fmt.Errorf("%w: no payment processor configured", ErrUpstreamUnavailable)
	}
	charge, err := s.processor.Charge(ctx, paymentclient.ChargeRequest{
		Amount:          s.contactPrice,
		Currency:        s.currency,
		PaymentMethodID: paymentMethodID,
		CustomerEmail:   payerEmail,
		IdempotencyKey:  strings.TrimSpace(idempotencyKey),
		Metadata: map[string]string{
			"biodata_id": strconv.FormatInt(targetBiodataID, 10),
		},
	})
	if err != nil {
		if errors.Is(err, paymentclient.ErrDeclined) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
		s.logger.Warn("payment processor call failed", "payer", payerEmail, "biodata_id", targetBiodataID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	payment, _, err := s.Record(ctx, payerEmail, targetBiodataID, s.contactPrice, charge.ID)
	if err != nil {
		s.logger.Error("charge succeeded but payment could not be recorded", "charge_id", charge.ID, "payer", payerEmail, "error", err)
		return nil, err
	}

	request, err := s.RequestApproval(ctx, *payment)
	if err != nil {
		s.logger.Error("payment recorded but premium request could not be filed", "payment_id", payment.PaymentID, "error", err)
		return nil, err
	}

	return &CheckoutResult{Payment: *payment, Request: *request}, nil
}

func (s *Service) consumeCheckoutAllowance(ctx context.Context, payerEmail string) error {
	if s.limiter == nil || s.checkoutLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, checkoutRateLimitScope, payerEmail, s.checkoutLimit, time.Minute)
	if err != nil {
		s.logger.Warn("checkout rate limiter unavailable; allowing request", "payer", payerEmail, "error", err)
		return nil
	}
	if count > s.checkoutLimit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}
