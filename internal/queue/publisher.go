package queue

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/document-access-gate/internal/notify"
)

// Publisher implements notify.Notifier by publishing persistent messages
// to the notification queue.  Each call dials the broker.  A failure is
// returned so the workflow can report it as a warning.
type Publisher struct {
	url       string
	queueName string
	log       *log.Logger
}

func NewPublisher(url, queueName string, logger *log.Logger) *Publisher {
	return &Publisher{url: url, queueName: queueName, log: logger}
}

func (p *Publisher) Notify(ctx context.Context, ev notify.Event) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Errorf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Errorf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		p.log.Errorf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := Encode(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, pub); err != nil {
		p.log.Errorf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
