package social

import (
	"context"
	"time"
)

// ConnectionStatus tracks whether a stored connection is usable.
type ConnectionStatus string

const (
	// ConnectionStatusActive marks a connection whose token is serviceable.
	ConnectionStatusActive ConnectionStatus = "active"
	// ConnectionStatusExpired marks a connection whose token lapsed and
	// could not be renewed. The record stays for audit until the user
	// reconnects or disconnects.
	ConnectionStatusExpired ConnectionStatus = "expired"
)

// Connection is the credential record for one (user, provider) pair. At most
// one exists per pair; a new authorization overwrites the previous one.
// Token fields hold plaintext only between the store boundary and the
// provider call that needs them.
type Connection struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	Provider          string           `json:"provider"`
	ProviderAccountID string           `json:"provider_account_id"`
	AccountUsername   string           `json:"account_username,omitempty"`
	AccessToken       string           `json:"-"`
	RefreshToken      string           `json:"-"`
	Scopes            []string         `json:"scopes,omitempty"`
	Status            ConnectionStatus `json:"status"`
	IssuedAt          time.Time        `json:"issued_at"`
	ExpiresAt         time.Time        `json:"expires_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Clone returns a copy so stores can redact or transform without mutating
// the caller's record.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Scopes = append([]string(nil), c.Scopes...)
	return &clone
}

// ConnectionRepository persists connections. Implementations report missing
// records with go-repository-bun's record-not-found error so stores can
// normalize them to ErrNotConnected.
type ConnectionRepository interface {
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*Connection, error)
	FindByUserID(ctx context.Context, userID string) ([]*Connection, error)
	// FindExpiring returns active connections whose expiry falls at or
	// before the given instant.
	FindExpiring(ctx context.Context, before time.Time) ([]*Connection, error)
	Upsert(ctx context.Context, conn *Connection) error
	SetStatus(ctx context.Context, userID, provider string, status ConnectionStatus) error
	DeleteByUserAndProvider(ctx context.Context, userID, provider string) error
}
