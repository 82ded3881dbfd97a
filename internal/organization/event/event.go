package event

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/events"
	"gorm.io/gorm"
)

const (
	OrganizationCreatedTopic = "organization.created"
	MemberRoleChangedTopic   = "organization.member_role_changed"
	MemberRemovedTopic       = "organization.member_removed"
)

type EventPublisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload []byte) error
	PublishTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload []byte) error
}

type outboxPublisher struct {
	outbox *events.Outbox
}

func NewOutboxPublisher(outbox *events.Outbox) EventPublisher {
	return &outboxPublisher{outbox: outbox}
}

func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload []byte) error {
	return p.outbox.Enqueue(ctx, orgID, topic, payload)
}

// PublishTx enqueues within the caller's transaction so the event commits
// atomically with the domain change.
func (p *outboxPublisher) PublishTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload []byte) error {
	return p.outbox.EnqueueTx(ctx, tx, orgID, topic, payload)
}
