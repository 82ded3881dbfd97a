// Package events provides the transactional outbox used to record domain
// events alongside the state change that produced them.
package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox appends domain events to the outbox table. Events written through
// EnqueueTx commit or roll back with the surrounding transaction.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID}
}

func (o *Outbox) Enqueue(ctx context.Context, orgID snowflake.ID, topic string, payload []byte) error {
	return o.EnqueueTx(ctx, o.db, orgID, topic, payload)
}

func (o *Outbox) EnqueueTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload []byte) error {
	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO domain_events (id, org_id, topic, payload, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		o.genID.Generate(),
		orgID,
		topic,
		datatypes.JSON(payload),
		now,
	).Error
}

// PendingCount returns the number of unpublished events.
func (o *Outbox) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := o.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM domain_events WHERE published = false`,
	).Scan(&count).Error
	return count, err
}
