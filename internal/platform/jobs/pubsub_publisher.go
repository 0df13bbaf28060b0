package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/gelomax/api/internal/services"
)

// PubSubInvoicePublisher publishes invoice emission jobs to a Pub/Sub topic.
type PubSubInvoicePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubInvoicePublisher constructs a Pub/Sub backed invoice job publisher.
func NewPubSubInvoicePublisher(topic *pubsub.Topic) (*PubSubInvoicePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub invoice publisher: topic is required")
	}
	return &PubSubInvoicePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishInvoiceJob enqueues an invoice emission message on the configured topic.
func (p *PubSubInvoicePublisher) PublishInvoiceJob(ctx context.Context, message services.InvoiceJobMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub invoice publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal invoice job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "jobId", message.JobID)
	setAttr(attrs, "invoiceId", message.InvoiceID)
	setAttr(attrs, "saleId", message.SaleID)
	setAttr(attrs, "unit", message.Unit)
	if key := strings.TrimSpace(message.IdempotencyKey); key != "" {
		attrs["idempotencyKey"] = key
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish invoice job: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
