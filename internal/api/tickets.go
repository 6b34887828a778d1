package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
)

// ticketIssuer mints and validates single-use WebSocket tickets.
//
// A ticket is a short-lived signed JWT whose jti is tracked in memory;
// validation consumes the jti so a captured ticket cannot be replayed even
// inside its validity window. The JWT signature means a restarted process
// rejects tickets it never issued without needing persistent state.
type ticketIssuer struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // jti -> expiry
}

// newTicketIssuer creates a ticket issuer from the security configuration.
func newTicketIssuer(cfg config.SecurityConfig) *ticketIssuer {
	return &ticketIssuer{
		secret:  []byte(cfg.TicketSecret),
		ttl:     cfg.GetTicketTTL(),
		pending: make(map[string]time.Time),
	}
}

// issue mints a new single-use ticket.
//
// Returns:
//   - string: Signed ticket for the ws endpoint's ticket query parameter
//   - error: If signing fails
func (t *ticketIssuer) issue() (string, error) {
	id := uuid.NewString()
	now := time.Now()
	expiry := now.Add(t.ttl)

	claims := jwt.MapClaims{
		"jti": id,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing ticket: %w", err)
	}

	t.mu.Lock()
	t.pending[id] = expiry
	t.mu.Unlock()

	return signed, nil
}

// validate verifies a ticket's signature and expiry and consumes it.
// A ticket validates at most once.
func (t *ticketIssuer) validate(ticket string) bool {
	token, err := jwt.Parse(ticket, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	id, ok := claims["jti"].(string)
	if !ok || id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.pending[id]
	if !ok {
		return false
	}
	delete(t.pending, id)

	return time.Now().Before(expiry)
}

// clean removes expired unconsumed tickets.
func (t *ticketIssuer) clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, expiry := range t.pending {
		if now.After(expiry) {
			delete(t.pending, id)
		}
	}
}

// cleanLoop runs clean periodically until the context is cancelled.
func (t *ticketIssuer) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.clean()
		}
	}
}
