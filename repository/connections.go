package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	social "github.com/goliatone/go-social"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConnectionModel is the Bun model for social connections.
type ConnectionModel struct {
	bun.BaseModel `bun:"table:social_connections"`

	ID                uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	UserID            string    `bun:"user_id,notnull"`
	Provider          string    `bun:"provider,notnull"`
	ProviderAccountID string    `bun:"provider_account_id"`
	AccountUsername   string    `bun:"account_username"`
	AccessToken       string    `bun:"access_token"`
	RefreshToken      string    `bun:"refresh_token"`
	Scopes            []string  `bun:"scopes,type:jsonb"`
	Status            string    `bun:"status,notnull"`
	IssuedAt          time.Time `bun:"issued_at"`
	ExpiresAt         time.Time `bun:"expires_at"`
	CreatedAt         time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,default:current_timestamp"`
}

func (m *ConnectionModel) ensureDefaults() {
	if m.ID == uuid.Nil {
		// Deterministic ID from the natural key, so repeated upserts of the
		// same pair never mint a second identity.
		if id, err := hashid.NewUUID(m.UserID + ":" + m.Provider); err == nil {
			m.ID = id
		} else {
			m.ID = uuid.New()
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

// ConnectionRepository implements social.ConnectionRepository using Bun.
type ConnectionRepository struct {
	db *bun.DB
}

var _ social.ConnectionRepository = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new repository.
func NewConnectionRepository(db *bun.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// CreateConnectionsTable creates the backing table and its natural key
// index. Hosts with their own migrations can ignore this.
func CreateConnectionsTable(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*ConnectionModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewCreateIndex().
		Model((*ConnectionModel)(nil)).
		Index("social_connections_user_provider_idx").
		Unique().
		IfNotExists().
		Column("user_id", "provider").
		Exec(ctx)
	return err
}

// FindByUserAndProvider implements social.ConnectionRepository.
func (r *ConnectionRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*social.Connection, error) {
	model := &ConnectionModel{}
	err := r.db.NewSelect().
		Model(model).
		Where("user_id = ? AND provider = ?", userID, provider).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id":  userID,
					"provider": provider,
				})
		}
		return nil, err
	}
	return r.toConnection(model), nil
}

// FindByUserID implements social.ConnectionRepository.
func (r *ConnectionRepository) FindByUserID(ctx context.Context, userID string) ([]*social.Connection, error) {
	var models []ConnectionModel
	err := r.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID).
		Order("provider ASC").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*social.Connection{}, nil
		}
		return nil, err
	}

	connections := make([]*social.Connection, len(models))
	for i, m := range models {
		connections[i] = r.toConnection(&m)
	}
	return connections, nil
}

// FindExpiring implements social.ConnectionRepository.
func (r *ConnectionRepository) FindExpiring(ctx context.Context, before time.Time) ([]*social.Connection, error) {
	var models []ConnectionModel
	err := r.db.NewSelect().
		Model(&models).
		Where("status = ? AND expires_at <= ?", string(social.ConnectionStatusActive), before).
		Order("expires_at ASC").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*social.Connection{}, nil
		}
		return nil, err
	}

	connections := make([]*social.Connection, len(models))
	for i, m := range models {
		connections[i] = r.toConnection(&m)
	}
	return connections, nil
}

// Upsert implements social.ConnectionRepository. The natural key is
// (user_id, provider); a reauthorization replaces the previous credential.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *social.Connection) error {
	model := r.fromConnection(conn)
	model.ensureDefaults()
	model.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (user_id, provider) DO UPDATE").
		Set("provider_account_id = EXCLUDED.provider_account_id").
		Set("account_username = EXCLUDED.account_username").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("scopes = EXCLUDED.scopes").
		Set("status = EXCLUDED.status").
		Set("issued_at = EXCLUDED.issued_at").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}

	if conn != nil {
		conn.ID = model.ID.String()
		conn.CreatedAt = model.CreatedAt
		conn.UpdatedAt = model.UpdatedAt
	}
	return nil
}

// SetStatus implements social.ConnectionRepository.
func (r *ConnectionRepository) SetStatus(ctx context.Context, userID, provider string, status social.ConnectionStatus) error {
	res, err := r.db.NewUpdate().
		Model((*ConnectionModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id":  userID,
				"provider": provider,
			})
	}
	return nil
}

// DeleteByUserAndProvider implements social.ConnectionRepository.
func (r *ConnectionRepository) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	res, err := r.db.NewDelete().
		Model((*ConnectionModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id":  userID,
				"provider": provider,
			})
	}
	return nil
}

func (r *ConnectionRepository) toConnection(m *ConnectionModel) *social.Connection {
	return &social.Connection{
		ID:                m.ID.String(),
		UserID:            m.UserID,
		Provider:          m.Provider,
		ProviderAccountID: m.ProviderAccountID,
		AccountUsername:   m.AccountUsername,
		AccessToken:       m.AccessToken,
		RefreshToken:      m.RefreshToken,
		Scopes:            append([]string(nil), m.Scopes...),
		Status:            social.ConnectionStatus(m.Status),
		IssuedAt:          m.IssuedAt,
		ExpiresAt:         m.ExpiresAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (r *ConnectionRepository) fromConnection(c *social.Connection) *ConnectionModel {
	if c == nil {
		return &ConnectionModel{}
	}

	var id uuid.UUID
	if c.ID != "" {
		if parsed, err := uuid.Parse(c.ID); err == nil {
			id = parsed
		}
	}

	return &ConnectionModel{
		ID:                id,
		UserID:            c.UserID,
		Provider:          c.Provider,
		ProviderAccountID: c.ProviderAccountID,
		AccountUsername:   c.AccountUsername,
		AccessToken:       c.AccessToken,
		RefreshToken:      c.RefreshToken,
		Scopes:            append([]string(nil), c.Scopes...),
		Status:            string(c.Status),
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}
