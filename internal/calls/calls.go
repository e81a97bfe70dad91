package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"callscope/internal/services"
)

const callColumns = "id, owner_id, file_path, source_kind, file_name, display_name, status, segment_count, duration_seconds, created_at, updated_at"

// NewCall describes a call to insert.
type NewCall struct {
	ID              string
	OwnerID         string
	FilePath        string
	SourceKind      string
	FileName        string
	DisplayName     string
	SegmentCount    int
	DurationSeconds float64
}

// Create inserts a pending call. An empty ID is assigned a UUID.
func (s *Store) Create(ctx context.Context, in NewCall) (*Call, error) {
	if strings.TrimSpace(in.OwnerID) == "" || strings.TrimSpace(in.FilePath) == "" {
		return nil, services.Wrap(services.ErrValidation, "calls", "create", "owner and file path are required", nil)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := formatTime(s.now())
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO calls (
                id, owner_id, file_path, source_kind, file_name, display_name,
                status, segment_count, duration_seconds, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.OwnerID, in.FilePath, in.SourceKind, in.FileName, nullableString(in.DisplayName),
			StatusPending, in.SegmentCount, in.DurationSeconds, timestamp, timestamp,
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a call by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

// List returns calls newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Call, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Status) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Status))+")")
		for _, status := range filter.Status {
			args = append(args, status)
		}
	}
	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []*Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

// UpdateStatus moves a call to next, enforcing the lifecycle.
func (s *Store) UpdateStatus(ctx context.Context, id string, next Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.transition(ctx, tx, id, next); err != nil {
		return err
	}
	return retryOnBusy(ctx, tx.Commit)
}

func (s *Store) transition(ctx context.Context, tx *sql.Tx, id string, next Status) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT status FROM calls WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read call status: %w", err)
	}
	if !Status(current).CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE calls SET status = ?, updated_at = ? WHERE id = ?",
		next, formatTime(s.now()), id,
	); err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	return nil
}

// FailStale marks pending and processing calls as failed. Jobs live only in
// memory, so such calls cannot finish after a restart.
func (s *Store) FailStale(ctx context.Context) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			"UPDATE calls SET status = ?, updated_at = ? WHERE status IN (?, ?)",
			StatusFailed, formatTime(s.now()), StatusPending, StatusProcessing,
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("fail stale calls: %w", err)
	}
	return affected, nil
}

// StatusCounts returns the number of calls per status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM calls GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count calls: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func scanCall(scanner interface{ Scan(dest ...any) error }) (*Call, error) {
	var (
		call        Call
		status      string
		displayName sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&call.ID,
		&call.OwnerID,
		&call.FilePath,
		&call.SourceKind,
		&call.FileName,
		&displayName,
		&status,
		&call.SegmentCount,
		&call.DurationSeconds,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	call.Status = Status(status)
	call.DisplayName = displayName.String
	if created, err := parseTimeString(createdRaw); err == nil {
		call.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		call.UpdatedAt = updated
	}
	return &call, nil
}
