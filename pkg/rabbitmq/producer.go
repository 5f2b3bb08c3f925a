/**
 * @description
 * This package provides a simple producer for publishing entitlement lifecycle
 * events to RabbitMQ. Downstream consumers (notification, analytics) bind to the
 * topic exchange with the routing keys declared below.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyPaymentRecorded       = "payment.recorded"
	RoutingKeyPremiumApproved       = "premium.approved"
	RoutingKeySuccessStorySubmitted = "success_story.submitted"
	DefaultExchange                 = "soullink_events"
)

// PaymentRecordedEvent is published after a payment is appended to the ledger.
type PaymentRecordedEvent struct {
	PaymentID       string    `json:"payment_id"`
	PayerEmail      string    `json:"payer_email"`
	TargetBiodataID int64     `json:"target_biodata_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Timestamp       time.Time `json:"timestamp"`
}

// PremiumApprovedEvent is published once per fresh pending -> approved transition.
type PremiumApprovedEvent struct {
	RequestID       string    `json:"request_id"`
	PaymentID       string    `json:"payment_id"`
	PayerEmail      string    `json:"payer_email"`
	TargetBiodataID int64     `json:"target_biodata_id"`
	ApprovedAt      time.Time `json:"approved_at"`
}

// SuccessStorySubmittedEvent is published when a couple submits their story.
type SuccessStorySubmittedEvent struct {
	StoryID          string    `json:"story_id"`
	SubmittedBy      string    `json:"submitted_by"`
	SelfBiodataID    int64     `json:"self_biodata_id"`
	PartnerBiodataID int64     `json:"partner_biodata_id"`
	Timestamp        time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" routing_key=%s", routingKey)
	return nil
}

func (p *EventProducerFallback) Close() {}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Drop stray characters ahead of the scheme
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and declares the events exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// Publish sends a JSON message to the events exchange with a routing key.
// A closed channel is reopened once; the message itself is never republished.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" routing_key=%s err=%v", routingKey, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		log.Printf("level=warn component=rabbitmq_producer msg=\"channel closed; reopening\" exchange=%s", p.exchange)
		if p.conn == nil || p.conn.IsClosed() {
			return amqp091.ErrClosed
		}
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return chErr
		}
		if err := declareExchange(ch, p.exchange); err != nil {
			ch.Close()
			return err
		}
		p.channel = ch
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed\" exchange=%s routing_key=%s err=%v", p.exchange, routingKey, err)
		return err
	}
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
