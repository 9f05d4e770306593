// Package events publishes security events to other instances and
// external consumers over Watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// AuditTopic is the topic security events are published on.
const AuditTopic = "sso.audit"

// auditPayload is the wire form of an audit event.
type auditPayload struct {
	EventType   string `json:"event_type"`
	UserAddress string `json:"user_address,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Action      string `json:"action"`
	Status      string `json:"status"`
	Details     string `json:"details,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// WatermillPublisher implements ports.EventPublisher on a Watermill
// message publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a publisher on the audit topic.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     AuditTopic,
	}
}

func (p *WatermillPublisher) PublishAuditEvent(ctx context.Context, e *core.AuditEvent) error {
	payload, err := json.Marshal(auditPayload{
		EventType:   e.EventType,
		UserAddress: e.UserAddress,
		ClientID:    e.ClientID,
		Action:      e.Action,
		Status:      e.Status,
		Details:     e.Details,
		CreatedAt:   e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publishing audit event: %w", err)
	}
	return nil
}
