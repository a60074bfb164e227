// Package postgres stores content items, the system mode and audit records in
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/store"
)

const itemColumns = `id, platform, content_text, hashtags, status, owner_id,
	scheduled_for, published_at, created_at, updated_at, version`

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (content.Item, error) {
	var (
		item      content.Item
		platform  string
		status    string
		hashtags  pq.StringArray
		scheduled sql.NullTime
		published sql.NullTime
	)
	if err := row.Scan(
		&item.ID, &platform, &item.Text, &hashtags, &status, &item.OwnerID,
		&scheduled, &published, &item.CreatedAt, &item.UpdatedAt, &item.Version,
	); err != nil {
		return content.Item{}, err
	}
	item.Platform = content.Platform(platform)
	item.Status = content.Status(status)
	item.Hashtags = []string(hashtags)
	if scheduled.Valid {
		t := scheduled.Time
		item.ScheduledFor = &t
	}
	if published.Valid {
		t := published.Time
		item.PublishedAt = &t
	}
	return item, nil
}

func (s *Store) CreateItem(ctx context.Context, item content.Item, rec audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, string(item.Platform), item.Text, pq.Array(hashtags(item.Hashtags)), string(item.Status), item.OwnerID,
		item.ScheduledFor, item.PublishedAt, item.CreatedAt, item.UpdatedAt, item.Version)
	if err != nil {
		return fmt.Errorf("insert content item: %w", err)
	}
	if err := insertAudit(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetItem(ctx context.Context, id string) (content.Item, error) {
	if _, err := uuid.Parse(id); err != nil {
		return content.Item{}, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM content_items
		WHERE id = $1
	`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Item{}, store.ErrNotFound
		}
		return content.Item{}, err
	}
	return item, nil
}

// ListItems returns matching items, newest first.
func (s *Store) ListItems(ctx context.Context, f content.Filter) ([]content.Item, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.Platform != "" {
		args = append(args, string(f.Platform))
		where = append(where, fmt.Sprintf("platform = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + itemColumns + ` FROM content_items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	out := make([]content.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateItem writes item only if the stored version still equals
// expectedVersion, and appends rec in the same transaction.
func (s *Store) UpdateItem(ctx context.Context, item content.Item, expectedVersion int64, rec audit.Record) error {
	return s.updateItem(ctx, item, expectedVersion, rec, nil)
}

// UpdateItemGated is UpdateItem that first reads the mode row FOR SHARE in the
// same transaction and refuses the update unless allow accepts it. SaveMode
// upserts that row, so a concurrent mode change waits for this transaction
// and any crisis sweep that follows sees its result.
func (s *Store) UpdateItemGated(ctx context.Context, item content.Item, expectedVersion int64, rec audit.Record, allow func(controls.State) bool) error {
	return s.updateItem(ctx, item, expectedVersion, rec, allow)
}

func (s *Store) updateItem(ctx context.Context, item content.Item, expectedVersion int64, rec audit.Record, allow func(controls.State) bool) error {
	if _, err := uuid.Parse(item.ID); err != nil {
		return store.ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if allow != nil {
		var (
			st   controls.State
			mode string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT mode, paused
			FROM system_mode
			WHERE id = 1
			FOR SHARE
		`).Scan(&mode, &st.Paused)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read system mode: %w", err)
		default:
			st.Mode = controls.Mode(mode)
			if !allow(st) {
				return &store.ModeBlockedError{Mode: mode, Paused: st.Paused}
			}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE content_items
		SET content_text = $2,
		    hashtags = $3,
		    status = $4,
		    scheduled_for = $5,
		    published_at = $6,
		    updated_at = $7,
		    version = $8
		WHERE id = $1 AND version = $9
	`, item.ID, item.Text, pq.Array(hashtags(item.Hashtags)), string(item.Status),
		item.ScheduledFor, item.PublishedAt, item.UpdatedAt, item.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM content_items WHERE id = $1)`, item.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	if err := insertAudit(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadMode(ctx context.Context) (controls.State, bool, error) {
	var (
		st   controls.State
		mode string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, paused, notes, updated_by, updated_at
		FROM system_mode
		WHERE id = 1
	`).Scan(&mode, &st.Paused, &st.Notes, &st.UpdatedBy, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return controls.State{}, false, nil
		}
		return controls.State{}, false, err
	}
	st.Mode = controls.Mode(mode)
	return st, true, nil
}

func (s *Store) SaveMode(ctx context.Context, st controls.State, rec audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO system_mode (id, mode, paused, notes, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			paused = EXCLUDED.paused,
			notes = EXCLUDED.notes,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`, string(st.Mode), st.Paused, st.Notes, st.UpdatedBy, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save system mode: %w", err)
	}
	if err := insertAudit(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendAudit(ctx context.Context, recs ...audit.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		if err := insertAudit(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryAudit returns matching records newest first.
func (s *Store) QueryAudit(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s $%d", col, len(args)))
	}
	if q.TargetType != "" {
		add("target_type =", q.TargetType)
	}
	if q.TargetID != "" {
		add("target_id =", q.TargetID)
	}
	if q.ActorID != "" {
		add("actor_id =", q.ActorID)
	}
	if q.Action != "" {
		add("action =", q.Action)
	}
	if !q.Since.IsZero() {
		add("created_at >=", q.Since)
	}

	query := `SELECT id, actor_id, action, target_type, target_id, details, created_at FROM audit_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Record, 0)
	for rows.Next() {
		var (
			rec     audit.Record
			details []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.TargetType, &rec.TargetID, &details, &rec.Timestamp); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WorkflowCounts groups items created since the cutoff by status and
// platform, and counts audit records per action over the same window.
func (s *Store) WorkflowCounts(ctx context.Context, since time.Time, actions []string) (analytics.Counts, error) {
	counts := analytics.Counts{
		Items:   make(map[content.Status]map[content.Platform]int),
		Actions: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, platform, COUNT(*)
		FROM content_items
		WHERE created_at >= $1
		GROUP BY status, platform
	`, since)
	if err != nil {
		return counts, fmt.Errorf("count content items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status, platform string
			n                int
		)
		if err := rows.Scan(&status, &platform, &n); err != nil {
			return counts, err
		}
		st := content.Status(status)
		if counts.Items[st] == nil {
			counts.Items[st] = make(map[content.Platform]int)
		}
		counts.Items[st][content.Platform(platform)] = n
	}
	if err := rows.Err(); err != nil {
		return counts, err
	}

	actionRows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM audit_records
		WHERE created_at >= $1 AND action = ANY($2)
		GROUP BY action
	`, since, pq.Array(actions))
	if err != nil {
		return counts, fmt.Errorf("count audit actions: %w", err)
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var (
			action string
			n      int
		)
		if err := actionRows.Scan(&action, &n); err != nil {
			return counts, err
		}
		counts.Actions[action] = n
	}
	return counts, actionRows.Err()
}

func hashtags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func insertAudit(ctx context.Context, tx *sql.Tx, rec audit.Record) error {
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_records (id, actor_id, action, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.ActorID, rec.Action, rec.TargetType, rec.TargetID, raw, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
