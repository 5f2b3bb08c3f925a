package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/internal/store"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

// ApprovalOutcome tells a fresh approval apart from a replayed one.
type ApprovalOutcome string

const (
	OutcomeApproved        ApprovalOutcome = "approved"
	OutcomeAlreadyApproved ApprovalOutcome = "already_approved"
)

// RequestApproval files the premium request for a payment. It is idempotent on the
// payment id: a second call returns the stored request unchanged.
func (s *Service) RequestApproval(ctx context.Context, payment domain.Payment) (*domain.PremiumRequest, error) {
	existing, err := s.repo.GetPremiumRequestByPaymentID(ctx, payment.PaymentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrPremiumRequestNotFound) {
		return nil, fmt.Errorf("failed to look up premium request: %w", err)
	}

	req := &domain.PremiumRequest{
		RequestID:       uuid.NewString(),
		PaymentID:       payment.PaymentID,
		PayerEmail:      payment.PayerEmail,
		TargetBiodataID: payment.TargetBiodataID,
		Status:          domain.PremiumStatusPending,
	}
	if s.directApproval {
		approvedAt := s.now()
		req.Status = domain.PremiumStatusApproved
		req.ApprovedAt = &approvedAt
	}

	created, err := s.repo.InsertPremiumRequest(ctx, req)
	if errors.Is(err, store.ErrPairAlreadyApproved) {
		// The pair is already unlocked through another payment; keep this one pending.
		req.Status = domain.PremiumStatusPending
		req.ApprovedAt = nil
		created, err = s.repo.InsertPremiumRequest(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create premium request: %w", err)
	}
	if !created {
		return req, nil
	}

	s.logger.Info("premium request created", "payment_id", req.PaymentID, "payer", req.PayerEmail, "biodata_id", req.TargetBiodataID, "status", req.Status)
	if req.IsApproved() {
		s.publishApproved(ctx, *req)
	}
	return req, nil
}

// RequestApprovalByPaymentID files the request for a recorded payment. Only the payer
// or an admin may do so.
func (s *Service) RequestApprovalByPaymentID(ctx context.Context, caller Identity, paymentID string) (*domain.PremiumRequest, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if !caller.IsAdmin && normalizeEmail(caller.Email) != payment.PayerEmail {
		return nil, ErrForbidden
	}
	return s.RequestApproval(ctx, *payment)
}

// Approve promotes the pending request of a payment. Concurrent and repeated calls
// converge: exactly one caller observes OutcomeApproved.
func (s *Service) Approve(ctx context.Context, paymentID string) (*domain.PremiumRequest, ApprovalOutcome, error) {
	if paymentID == "" {
		return nil, "", fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}

	approved, err := s.repo.ApprovePremiumRequest(ctx, paymentID, s.now())
	if errors.Is(err, store.ErrPairAlreadyApproved) {
		return s.approvedPairFor(ctx, paymentID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to approve premium request: %w", err)
	}
	if approved != nil {
		s.logger.Info("premium request approved", "payment_id", paymentID, "payer", approved.PayerEmail, "biodata_id", approved.TargetBiodataID)
		s.publishApproved(ctx, *approved)
		return approved, OutcomeApproved, nil
	}

	current, err := s.repo.GetPremiumRequestByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrPremiumRequestNotFound) {
			return nil, "", ErrUnknownPayment
		}
		return nil, "", fmt.Errorf("failed to load premium request: %w", err)
	}
	if !current.IsApproved() {
		return nil, "", fmt.Errorf("premium request for payment %s is still %s after approval", paymentID, current.Status)
	}
	return current, OutcomeAlreadyApproved, nil
}

// approvedPairFor resolves the approved request that blocked approving paymentID.
func (s *Service) approvedPairFor(ctx context.Context, paymentID string) (*domain.PremiumRequest, ApprovalOutcome, error) {
	pending, err := s.repo.GetPremiumRequestByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load premium request: %w", err)
	}
	approved, err := s.repo.FindApprovedPremiumRequest(ctx, pending.PayerEmail, pending.TargetBiodataID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load approved premium request: %w", err)
	}
	s.logger.Info("payer already holds access through another payment", "payment_id", paymentID, "approved_payment_id", approved.PaymentID)
	return approved, OutcomeAlreadyApproved, nil
}

// ListApproved returns approved requests in approval order.
func (s *Service) ListApproved(ctx context.Context, filter domain.PremiumRequestFilter) ([]domain.PremiumRequest, error) {
	filter.PayerEmail = normalizeEmail(filter.PayerEmail)
	requests, err := s.repo.ListApprovedPremiumRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved requests: %w", err)
	}
	return requests, nil
}

// ListRequests returns every premium request, pending and approved.
func (s *Service) ListRequests(ctx context.Context) ([]domain.PremiumRequest, error) {
	requests, err := s.repo.ListPremiumRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list premium requests: %w", err)
	}
	return requests, nil
}

func (s *Service) publishApproved(ctx context.Context, req domain.PremiumRequest) {
	event := rabbitmq.PremiumApprovedEvent{
		RequestID:       req.RequestID,
		PaymentID:       req.PaymentID,
		PayerEmail:      req.PayerEmail,
		TargetBiodataID: req.TargetBiodataID,
	}
	if req.ApprovedAt != nil {
		event.ApprovedAt = *req.ApprovedAt
	}
	s.publishEvent(ctx, rabbitmq.RoutingKeyPremiumApproved, event)
}
