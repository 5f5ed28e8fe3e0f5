package lobby

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidTicket is returned when a ticket is malformed or badly signed.
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrExpiredTicket is returned when a ticket has expired.
	ErrExpiredTicket = errors.New("ticket has expired")
	// ErrTicketUsed is returned by Redeem for a ticket that already opened a
	// session.
	ErrTicketUsed = errors.New("ticket already used")
)

// TicketConfig holds ticket signing configuration.
type TicketConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// DefaultTicketConfig returns a default ticket configuration.
// In production, the secret should be loaded from TICKET_SECRET.
func DefaultTicketConfig() TicketConfig {
	return TicketConfig{
		Secret: "change-me-in-production",
		TTL:    10 * time.Minute,
		Issuer: "sketchroom",
	}
}

// TicketClaims binds one display name to one room.
type TicketClaims struct {
	Room string `json:"room"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// SessionID returns the ticket's unique ID.
func (c *TicketClaims) SessionID() string {
	return c.ID
}

// TicketManager signs and validates lobby tickets.
type TicketManager struct {
	config TicketConfig
	now    func() time.Time

	mu       sync.Mutex
	redeemed map[string]time.Time // ticket ID -> expiry
}

// NewTicketManager creates a new TicketManager with the given configuration.
func NewTicketManager(config TicketConfig) *TicketManager {
	if config.TTL <= 0 {
		config.TTL = DefaultTicketConfig().TTL
	}
	return &TicketManager{
		config:   config,
		now:      time.Now,
		redeemed: make(map[string]time.Time),
	}
}

// Issue signs a ticket for name in room.
func (m *TicketManager) Issue(room, name string) (string, *TicketClaims, error) {
	now := m.now()
	claims := &TicketClaims{
		Room: room,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Subject:   room,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate checks the signature and expiry of a ticket and returns its claims.
func (m *TicketManager) Validate(ticket string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTicket
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredTicket
		}
		return nil, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.Room == "" || claims.Name == "" {
		return nil, ErrInvalidTicket
	}
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}

// Redeem validates ticket and marks it used. Each ticket redeems once; its ID
// is remembered until the ticket would have expired anyway.
func (m *TicketManager) Redeem(ticket string) (*TicketClaims, error) {
	claims, err := m.Validate(ticket)
	if err != nil {
		return nil, err
	}

	now := m.now()
	expiry := now.Add(m.config.TTL)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, exp := range m.redeemed {
		if !exp.After(now) {
			delete(m.redeemed, id)
		}
	}
	if _, used := m.redeemed[claims.ID]; used {
		return nil, ErrTicketUsed
	}
	m.redeemed[claims.ID] = expiry
	return claims, nil
}

// Redeemed returns the number of redeemed tickets not yet expired.
func (m *TicketManager) Redeemed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redeemed)
}

// TTL returns the ticket lifetime.
func (m *TicketManager) TTL() time.Duration {
	return m.config.TTL
}
