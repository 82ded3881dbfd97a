package domain

import (
	"context"
	"errors"
	"time"

	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
)

type Service interface {
	Signup(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	UserAgent   string `json:"-"`
	IPAddress   string `json:"-"`
}

// Result carries the freshly provisioned identity. OrgID is empty when the
// workspace bootstrap was deferred to the next login.
type Result struct {
	Session   *authdomain.SessionView
	RawToken  string
	ExpiresAt time.Time
	OrgID     string
	UserID    string
}

type Provisioner interface {
	Provision(ctx context.Context, organizationID string) error
}

var ErrInvalidRequest = errors.New("invalid_signup_request")
