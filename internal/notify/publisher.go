// Package notify publishes booking notices to the notification collaborator
// over RabbitMQ. Delivery is fire-and-forget: every error is logged and
// returned so callers can ignore it without interrupting the booking flow.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/ticketing/internal/app"
)

const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

// Publisher dials the broker per publish, which keeps it robust against
// broker restarts at the cost of connection churn. An empty URL disables
// publishing entirely.
type Publisher struct {
	url string
	log *logrus.Logger
}

func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// BookingConfirmed publishes a notice to the booking.confirmed queue.
func (p *Publisher) BookingConfirmed(ctx context.Context, n app.BookingNotice) error {
	return p.publish(ctx, QueueBookingConfirmed, n)
}

// BookingCancelled publishes a notice to the booking.cancelled queue.
func (p *Publisher) BookingCancelled(ctx context.Context, n app.BookingNotice) error {
	return p.publish(ctx, QueueBookingCancelled, n)
}

func (p *Publisher) publish(ctx context.Context, queue string, n app.BookingNotice) error {
	if p == nil || p.url == "" {
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable queue so notices survive broker restarts; declare is idempotent.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: marshal notice failed")
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
