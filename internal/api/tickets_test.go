package api

import (
	"testing"
	"time"

	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
)

func testTicketIssuer(ttl int) *ticketIssuer {
	return newTicketIssuer(config.SecurityConfig{
		TicketSecret: "test-secret-key-at-least-32-characters-long",
		TicketTTL:    ttl,
	})
}

func TestTicketRoundTrip(t *testing.T) {
	issuer := testTicketIssuer(60)

	ticket, err := issuer.issue()
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}
	if ticket == "" {
		t.Fatal("issue() returned empty ticket")
	}

	if !issuer.validate(ticket) {
		t.Error("freshly issued ticket did not validate")
	}
}

func TestTicketSingleUse(t *testing.T) {
	issuer := testTicketIssuer(60)

	ticket, err := issuer.issue()
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}

	if !issuer.validate(ticket) {
		t.Fatal("first validation failed")
	}
	if issuer.validate(ticket) {
		t.Error("ticket validated twice; must be single-use")
	}
}

func TestTicketGarbageRejected(t *testing.T) {
	issuer := testTicketIssuer(60)

	tests := []string{
		"",
		"not-a-jwt",
		"aaaa.bbbb.cccc",
	}
	for _, ticket := range tests {
		if issuer.validate(ticket) {
			t.Errorf("validate(%q) = true, want false", ticket)
		}
	}
}

func TestTicketWrongSecretRejected(t *testing.T) {
	issuer := testTicketIssuer(60)
	other := newTicketIssuer(config.SecurityConfig{
		TicketSecret: "another-secret-key-also-32-characters!!",
		TicketTTL:    60,
	})

	ticket, err := other.issue()
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}
	if issuer.validate(ticket) {
		t.Error("ticket signed with a different secret validated")
	}
}

func TestTicketCleanRemovesExpired(t *testing.T) {
	issuer := testTicketIssuer(60)

	ticket, err := issuer.issue()
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}

	// Force the stored expiry into the past, then clean.
	issuer.mu.Lock()
	for id := range issuer.pending {
		issuer.pending[id] = time.Now().Add(-time.Minute)
	}
	issuer.mu.Unlock()

	issuer.clean()

	issuer.mu.Lock()
	remaining := len(issuer.pending)
	issuer.mu.Unlock()
	if remaining != 0 {
		t.Errorf("pending tickets after clean = %d, want 0", remaining)
	}
	if issuer.validate(ticket) {
		t.Error("expired ticket validated after clean")
	}
}
