package authorization

import "errors"

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrNotAMember          = errors.New("not_a_member")
	ErrInsufficientRole    = errors.New("insufficient_role")
	ErrForbidden           = errors.New("forbidden")
)
