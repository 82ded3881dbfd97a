package signup

import (
	"context"
	"strings"

	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/signup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Auth        authdomain.Service
	Orgs        orgdomain.Service
	Provisioner domain.Provisioner
}

type service struct {
	log         *zap.Logger
	authsvc     authdomain.Service
	orgsvc      orgdomain.Service
	provisioner domain.Provisioner
}

func NewService(p Params) domain.Service {
	return &service{
		log:         p.Log.Named("signup.service"),
		authsvc:     p.Auth,
		orgsvc:      p.Orgs,
		provisioner: p.Provisioner,
	}
}

func (s *service) Signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidRequest
	}

	user, err := s.authsvc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	// Workspace bootstrap never blocks signup; a miss here is retried on
	// the next login.
	orgID := ""
	org, err := s.orgsvc.EnsurePersonalOrg(ctx, user.ID, user.DisplayName)
	if err != nil {
		s.log.Warn("workspace bootstrap during signup failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	} else {
		orgID = org.ID.String()
		if err := s.provisioner.Provision(ctx, orgID); err != nil {
			s.log.Warn("workspace provisioning failed",
				zap.String("org_id", orgID),
				zap.Error(err),
			)
		}
	}

	session, err := s.authsvc.Login(ctx, authdomain.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Result{
		Session:   session.Session,
		RawToken:  session.RawToken,
		ExpiresAt: session.ExpiresAt,
		OrgID:     orgID,
		UserID:    user.ID.String(),
	}, nil
}
