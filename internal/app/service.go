/**
 * @description
 * This file contains the core business logic for the entitlement-service. The `Service`
 * struct coordinates the profile store, the payment ledger, the premium-request
 * registry and the contact resolver on top of a single `store.Repository`.
 *
 * Key features:
 * - Records contact-access payments and turns them into premium requests.
 * - Performs the pending -> approved transition as a storage-level compare-and-set.
 * - Decides, for any (requester, biodata) pair, whether contact details may be shown.
 * - Publishes lifecycle events to RabbitMQ without failing the originating operation.
 *
 * @dependencies
 * - context, errors, fmt, log/slog, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paymentclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soullink/entitlement-service/internal/store"
	"github.com/soullink/entitlement-service/pkg/paymentclient"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

const (
	ApprovalModeTwoStep = "two_step"
	ApprovalModeDirect  = "direct"

	DefaultContactPrice = 5
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("amount does not match the contact price")
	ErrProfileNotFound     = errors.New("biodata not found")
	ErrSelfPurchase        = errors.New("cannot purchase access to your own biodata")
	ErrAlreadyUnlocked     = errors.New("contact details are already unlocked for this biodata")
	ErrApprovalPending     = errors.New("a paid request for this biodata is awaiting approval")
	ErrPaymentConflict     = errors.New("payment reference is already recorded for a different purchase")
	ErrUnknownPayment      = errors.New("unknown payment")
	ErrFavoriteExists      = errors.New("biodata is already in favorites")
	ErrFavoriteNotFound    = errors.New("favorite not found")
	ErrUpstreamUnavailable = errors.New("payment processor unavailable")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrRateLimited         = errors.New("too many requests")
	ErrForbidden           = errors.New("forbidden")
)

// RateLimitError carries the wait time for a throttled caller. It matches ErrRateLimited.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Identity is the authenticated caller, resolved by the transport layer.
type Identity struct {
	Email   string
	IsAdmin bool
}

// PaymentProcessor charges the contact-access fee.
type PaymentProcessor interface {
	Charge(ctx context.Context, in paymentclient.ChargeRequest) (*paymentclient.Charge, error)
}

// RateLimiter counts attempts inside a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the business settings of the service.
type Options struct {
	ContactPrice               int64
	Currency                   string
	ApprovalMode               string
	CheckoutRateLimitPerMinute int
}

// Service provides the core business logic for contact entitlements.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	processor     PaymentProcessor
	limiter       RateLimiter
	logger        *slog.Logger

	contactPrice   int64
	currency       string
	directApproval bool
	checkoutLimit  int

	now func() time.Time
}

// NewService creates a new entitlement service instance. processor and limiter may be nil.
func NewService(repo store.Repository, producer rabbitmq.Publisher, processor PaymentProcessor, limiter RateLimiter, logger *slog.Logger, opts Options) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ContactPrice <= 0 {
		opts.ContactPrice = DefaultContactPrice
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = "usd"
	}

	return &Service{
		repo:           repo,
		eventProducer:  producer,
		processor:      processor,
		limiter:        limiter,
		logger:         logger,
		contactPrice:   opts.ContactPrice,
		currency:       opts.Currency,
		directApproval: strings.EqualFold(strings.TrimSpace(opts.ApprovalMode), ApprovalModeDirect),
		checkoutLimit:  opts.CheckoutRateLimitPerMinute,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ContactPrice returns the fixed unit price of one contact unlock.
func (s *Service) ContactPrice() int64 {
	return s.contactPrice
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, event interface{}) {
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		s.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// profileError maps a store lookup failure onto the service's error vocabulary.
func profileError(err error) error {
	if errors.Is(err, store.ErrBiodataNotFound) {
		return ErrProfileNotFound
	}
	return fmt.Errorf("failed to load biodata: %w", err)
}
