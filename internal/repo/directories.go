package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hispgo/program-messaging/internal/message"
)

// SQLDirectory answers the read-only contact lookups the resolver needs:
// the registered phone/email of an organisation unit and the contact
// attribute values of a tracked entity. Missing rows are "", nil — absence
// of a contact is not a fault.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) PhoneNumber(ctx context.Context, orgUnitID string) (string, error) {
	return d.orgUnitColumn(ctx, orgUnitID, "phone_number")
}

func (d *SQLDirectory) EmailAddress(ctx context.Context, orgUnitID string) (string, error) {
	return d.orgUnitColumn(ctx, orgUnitID, "email")
}

func (d *SQLDirectory) orgUnitColumn(ctx context.Context, orgUnitID, column string) (string, error) {
	var value sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT `+column+` FROM org_units WHERE uid = $1`, orgUnitID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

func (d *SQLDirectory) ContactValues(ctx context.Context, trackedEntityID string, ch message.DeliveryChannel) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT value FROM tracked_entity_contacts
		WHERE tracked_entity_uid = $1 AND channel = $2
		ORDER BY id ASC
	`, trackedEntityID, string(ch))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}
