package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims represents session token claims for a control surface.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"` // "operator", "output", "remote"
	Generation uint64 `json:"gen"`
}

// Manager issues and validates control-session tokens.
type Manager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
	issuer     string
	now        func() time.Time

	// Tokens carrying an older generation are rejected. Bumped when the
	// remote PIN is regenerated so every existing session must re-authenticate.
	generation uint64
	mu         sync.RWMutex
}

// NewManager creates a new JWT manager with a fresh RSA key pair.
func NewManager(ttl time.Duration, issuer string) (*Manager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	return &Manager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		ttl:        ttl,
		issuer:     issuer,
		now:        time.Now,
	}, nil
}

// Generate creates a session token for the given operator and role.
func (m *Manager) Generate(operatorID, role string) (token string, expiresAt int64, err error) {
	now := m.now()
	exp := now.Add(m.ttl)

	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		OperatorID: operatorID,
		Role:       role,
		Generation: gen,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", 0, err
	}
	return token, exp.Unix(), nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()
	if claims.Generation != gen {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// RevokeAll invalidates every token issued up to now.
func (m *Manager) RevokeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
}
