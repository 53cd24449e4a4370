package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hispgo/program-messaging/internal/message"
)

// GatewayKind selects the client implementation used for a configuration.
type GatewayKind string

const (
	GatewayWebhook GatewayKind = "webhook"
	GatewaySMTP    GatewayKind = "smtp"
)

// GatewayConfig is one named gateway for a delivery channel. At most one
// configuration per channel carries the default flag at a time.
type GatewayConfig struct {
	ID        int64                   `json:"id"`
	UID       string                  `json:"uid"`
	Name      string                  `json:"name"`
	Channel   message.DeliveryChannel `json:"channel"`
	Kind      GatewayKind             `json:"kind"`
	Endpoint  string                  `json:"endpoint"`
	IsDefault bool                    `json:"isDefault"`
	CreatedAt time.Time               `json:"createdAt"`
}

type GatewayRepository interface {
	Save(ctx context.Context, g GatewayConfig) (GatewayConfig, error)
	List(ctx context.Context) ([]GatewayConfig, error)
	// GetDefault returns the active default for the channel, or ErrNotFound
	// when none is configured.
	GetDefault(ctx context.Context, ch message.DeliveryChannel) (GatewayConfig, error)
	// SetDefault makes the identified configuration the channel default,
	// unsetting the previous default in the same transaction.
	SetDefault(ctx context.Context, id int64) error
}

type SQLGatewayRepo struct {
	db *sql.DB
}

func NewSQLGatewayRepo(db *sql.DB) *SQLGatewayRepo {
	return &SQLGatewayRepo{db: db}
}

// Save inserts the configuration. A config saved with the default flag
// unseats the previous channel default in the same transaction, so the
// channel never carries two defaults.
func (r *SQLGatewayRepo) Save(ctx context.Context, g GatewayConfig) (GatewayConfig, error) {
	if g.UID == "" {
		g.UID = uuid.NewString()
	}
	g.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return GatewayConfig{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if g.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE gateway_configs SET is_default = FALSE
			WHERE channel = $1 AND is_default
		`, string(g.Channel)); err != nil {
			return GatewayConfig{}, fmt.Errorf("unset previous default: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO gateway_configs (uid, name, channel, kind, endpoint, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, g.UID, g.Name, string(g.Channel), string(g.Kind), g.Endpoint, g.IsDefault, g.CreatedAt).Scan(&g.ID)
	if err != nil {
		return GatewayConfig{}, err
	}
	return g, tx.Commit()
}

func (r *SQLGatewayRepo) List(ctx context.Context) ([]GatewayConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, uid, name, channel, kind, endpoint, is_default, created_at
		FROM gateway_configs
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GatewayConfig
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLGatewayRepo) GetDefault(ctx context.Context, ch message.DeliveryChannel) (GatewayConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, uid, name, channel, kind, endpoint, is_default, created_at
		FROM gateway_configs
		WHERE channel = $1 AND is_default
	`, string(ch))
	return scanGateway(row)
}

func (r *SQLGatewayRepo) SetDefault(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var channel string
	err = tx.QueryRowContext(ctx,
		`SELECT channel FROM gateway_configs WHERE id = $1`, id).Scan(&channel)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gateway_configs SET is_default = FALSE
		WHERE channel = $1 AND is_default
	`, channel); err != nil {
		return fmt.Errorf("unset previous default: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gateway_configs SET is_default = TRUE
		WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("set default: %w", err)
	}

	return tx.Commit()
}

func scanGateway(row rowScanner) (GatewayConfig, error) {
	var (
		g       GatewayConfig
		channel string
		kind    string
	)
	err := row.Scan(&g.ID, &g.UID, &g.Name, &channel, &kind, &g.Endpoint, &g.IsDefault, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GatewayConfig{}, ErrNotFound
	}
	if err != nil {
		return GatewayConfig{}, err
	}
	g.Channel = message.DeliveryChannel(channel)
	g.Kind = GatewayKind(kind)
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}
