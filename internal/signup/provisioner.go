package signup

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/events"
	"github.com/smallbiznis/beacon/internal/signup/domain"
)

const WorkspaceProvisionedTopic = "workspace.provisioned"

type noopProvisioner struct{}

func NewNoopProvisioner() domain.Provisioner {
	return &noopProvisioner{}
}

func (p *noopProvisioner) Provision(ctx context.Context, organizationID string) error {
	_ = ctx
	_ = organizationID
	return nil
}

// EventProvisioner records the new workspace in the outbox so downstream
// provisioning consumers pick it up.
type EventProvisioner struct {
	outbox *events.Outbox
}

func NewEventProvisioner(outbox *events.Outbox) domain.Provisioner {
	return &EventProvisioner{outbox: outbox}
}

func (p *EventProvisioner) Provision(ctx context.Context, organizationID string) error {
	orgID, err := snowflake.ParseString(strings.TrimSpace(organizationID))
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"organization_id": orgID.String(),
	})
	if err != nil {
		return err
	}

	return p.outbox.Enqueue(ctx, orgID, WorkspaceProvisionedTopic, payload)
}
