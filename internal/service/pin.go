package service

import (
	"errors"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const pinAlphabet = "0123456789"

// ErrInvalidPIN is returned for a wrong or missing pin.
var ErrInvalidPIN = errors.New("invalid pin")

// GeneratePIN returns a random numeric pin.
func GeneratePIN(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	return gonanoid.Generate(pinAlphabet, length)
}

// PIN holds the session pin as a bcrypt hash.
type PIN struct {
	mu   sync.RWMutex
	hash []byte
	cost int
}

// NewPIN hashes plain with the given bcrypt cost (0 means default).
func NewPIN(plain string, cost int) (*PIN, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	p := &PIN{cost: cost}
	if err := p.Set(plain); err != nil {
		return nil, err
	}
	return p, nil
}

// Set replaces the pin. Connections already authenticated are unaffected.
func (p *PIN) Set(plain string) error {
	if plain == "" {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.hash = hash
	p.mu.Unlock()
	return nil
}

// Verify reports whether candidate matches.
func (p *PIN) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	p.mu.RLock()
	hash := p.hash
	p.mu.RUnlock()
	return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}
