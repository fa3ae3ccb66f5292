package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// Control session roles.
const (
	RoleOperator = "operator"
	RoleOutput   = "output"
	RoleRemote   = "remote"
)

var ErrInvalidRole = errors.New("invalid session role")

// TokenIssuer signs and revokes control session tokens.
type TokenIssuer interface {
	Generate(operatorID, role string) (token string, expiresAt int64, err error)
	RevokeAll()
}

// Session is an issued control session.
type Session struct {
	Token      string `json:"token"`
	ExpiresAt  int64  `json:"expires_at"`
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

// SessionService trades the session pin for control API tokens.
type SessionService interface {
	Login(ctx context.Context, pin, role string) (*Session, error)
	// RevokeAll ends every issued session.
	RevokeAll(ctx context.Context)
}

type sessionService struct {
	pin    *PIN
	tokens TokenIssuer
}

// NewSessionService creates a session service checking logins against pin.
func NewSessionService(pin *PIN, tokens TokenIssuer) SessionService {
	return &sessionService{pin: pin, tokens: tokens}
}

func (s *sessionService) Login(ctx context.Context, pin, role string) (*Session, error) {
	l := log.Ctx(ctx)

	if role == "" {
		role = RoleOperator
	}
	switch role {
	case RoleOperator, RoleOutput, RoleRemote:
	default:
		return nil, ErrInvalidRole
	}
	if !s.pin.Verify(pin) {
		l.Warn().Str(log.FieldRole, role).Msg("control session login rejected")
		return nil, ErrInvalidPIN
	}

	id := uuid.New().String()
	token, exp, err := s.tokens.Generate(id, role)
	if err != nil {
		return nil, err
	}
	l.Info().Str(log.FieldOperatorID, id).Str(log.FieldRole, role).Msg("control session opened")
	return &Session{Token: token, ExpiresAt: exp, OperatorID: id, Role: role}, nil
}

func (s *sessionService) RevokeAll(ctx context.Context) {
	s.tokens.RevokeAll()
	l := log.Ctx(ctx)
	l.Info().Msg("all control sessions revoked")
}
