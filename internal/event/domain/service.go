package domain

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultListLimit caps event listings; requests above it are clamped.
	DefaultListLimit = 1000
)

type Service interface {
	Ingest(ctx context.Context, req CreateIngestRequest) (*IngestResponse, error)
}

type CreateIngestRequest struct {
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata"`
	DedupeKey  string         `json:"dedupe_key"`
	OccurredAt *time.Time     `json:"occurred_at"`
}

type IngestResponse struct {
	EventID      string    `json:"event_id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	OccurredAt   time.Time `json:"occurred_at"`
	Deduplicated bool      `json:"deduplicated"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidProject      = errors.New("invalid_project")
	ErrInvalidEventName    = errors.New("invalid_event_name")
	ErrInvalidOccurredAt   = errors.New("invalid_occurred_at")
)
