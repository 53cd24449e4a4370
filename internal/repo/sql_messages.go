package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hispgo/program-messaging/internal/message"
)

// SQLMessageRepo stores program messages through database/sql. The SQL is
// kept portable between the pgx stdlib driver and sqlite so tests can run
// against an in-process database.
type SQLMessageRepo struct {
	db              *sql.DB
	defaultPageSize int
}

func NewSQLMessageRepo(db *sql.DB, defaultPageSize int) *SQLMessageRepo {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	return &SQLMessageRepo{db: db, defaultPageSize: defaultPageSize}
}

const messageColumns = `id, uid, text, subject, channels, recipients,
	enrollment_id, event_id, status, store_copy, created_at, updated_at`

func (r *SQLMessageRepo) Save(ctx context.Context, m message.ProgramMessage) (message.ProgramMessage, error) {
	if m.UID == "" {
		m.UID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = message.Outbound
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	recipients, err := json.Marshal(m.Recipients)
	if err != nil {
		return message.ProgramMessage{}, fmt.Errorf("encode recipients: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO program_messages
			(uid, text, subject, channels, recipients, org_unit_id, enrollment_id,
			 event_id, status, store_copy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		m.UID, m.Text, m.Subject, joinChannels(m.DeliveryChannels), string(recipients),
		m.Recipients.OrganisationUnitID, m.EnrollmentID, m.EventID, string(m.Status),
		m.StoreCopy, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return message.ProgramMessage{}, err
	}
	return m, nil
}

func (r *SQLMessageRepo) Update(ctx context.Context, uid, text, subject string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE program_messages
		SET text = $2, subject = $3, updated_at = $4
		WHERE uid = $1
	`, uid, text, subject, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLMessageRepo) MarkStatus(ctx context.Context, id int64, status message.Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE program_messages
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLMessageRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM program_messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLMessageRepo) GetByID(ctx context.Context, id int64) (message.ProgramMessage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM program_messages WHERE id = $1`, id)
	return scanMessage(row)
}

func (r *SQLMessageRepo) GetByUID(ctx context.Context, uid string) (message.ProgramMessage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM program_messages WHERE uid = $1`, uid)
	return scanMessage(row)
}

// Query applies scope precedence (enrollment, then event, then the
// organisation-unit set), ANDs the remaining filters, and pages the result
// ordered by creation time descending.
func (r *SQLMessageRepo) Query(ctx context.Context, params message.QueryParams) ([]message.ProgramMessage, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case params.EnrollmentID != "":
		where = append(where, "enrollment_id = "+arg(params.EnrollmentID))
	case params.EventID != "":
		where = append(where, "event_id = "+arg(params.EventID))
	case len(params.OrganisationUnitIDs) > 0:
		placeholders := make([]string, 0, len(params.OrganisationUnitIDs))
		for _, ou := range params.OrganisationUnitIDs {
			placeholders = append(placeholders, arg(ou))
		}
		where = append(where, "org_unit_id IN ("+strings.Join(placeholders, ", ")+")")
	}

	if params.Status != "" {
		where = append(where, "status = "+arg(string(params.Status)))
	}
	if len(params.Channels) > 0 {
		var ors []string
		for _, ch := range params.Channels {
			ors = append(ors, "channels LIKE "+arg("%"+string(ch)+"%"))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if !params.AfterDate.IsZero() {
		where = append(where, "created_at >= "+arg(params.AfterDate.UTC()))
	}
	if !params.BeforeDate.IsZero() {
		where = append(where, "created_at <= "+arg(params.BeforeDate.UTC()))
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = r.defaultPageSize
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}

	query := `SELECT ` + messageColumns + ` FROM program_messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += " LIMIT " + arg(pageSize) + " OFFSET " + arg((page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *SQLMessageRepo) ListOutbound(ctx context.Context, limit int) ([]message.ProgramMessage, error) {
	if limit <= 0 {
		limit = r.defaultPageSize
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM program_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, string(message.Outbound), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (message.ProgramMessage, error) {
	var (
		m          message.ProgramMessage
		channels   string
		recipients string
		status     string
		subject    sql.NullString
		enrollment sql.NullString
		event      sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.UID, &m.Text, &subject, &channels, &recipients,
		&enrollment, &event, &status, &m.StoreCopy, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return message.ProgramMessage{}, ErrNotFound
	}
	if err != nil {
		return message.ProgramMessage{}, err
	}

	m.Subject = subject.String
	m.EnrollmentID = enrollment.String
	m.EventID = event.String
	m.Status = message.Status(status)
	m.DeliveryChannels = splitChannels(channels)
	if recipients != "" {
		if err := json.Unmarshal([]byte(recipients), &m.Recipients); err != nil {
			return message.ProgramMessage{}, fmt.Errorf("decode recipients: %w", err)
		}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]message.ProgramMessage, error) {
	var out []message.ProgramMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinChannels(channels []message.DeliveryChannel) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, string(ch))
	}
	return strings.Join(parts, ",")
}

func splitChannels(s string) []message.DeliveryChannel {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]message.DeliveryChannel, 0, len(parts))
	for _, p := range parts {
		out = append(out, message.DeliveryChannel(p))
	}
	return out
}
