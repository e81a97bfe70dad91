package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const analysisColumns = "id, call_id, owner_id, transcript, outcome, outcome_score, executive_summary, strengths_json, improvements_json, principle_scores_json, objections_json, revival_scripts_json, created_at"

// Complete inserts the analysis and marks its call completed in one
// transaction. A call that already has an analysis yields ErrAnalysisExists.
func (s *Store) Complete(ctx context.Context, record *Analysis) error {
	if record == nil {
		return errors.New("analysis is nil")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = s.now()

	columns, err := encodeAnalysisLists(record)
	if err != nil {
		return err
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin analysis tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analyses (`+analysisColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.CallID, record.OwnerID, record.Transcript,
			record.Outcome, record.OutcomeScore, record.ExecutiveSummary,
			columns[0], columns[1], columns[2], columns[3], columns[4],
			formatTime(record.CreatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrAnalysisExists, record.CallID)
			}
			return fmt.Errorf("insert analysis: %w", err)
		}
		if err := s.transition(ctx, tx, record.CallID, StatusCompleted); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetAnalysis returns the analysis recorded for callID.
func (s *Store) GetAnalysis(ctx context.Context, callID string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE call_id = ?`, callID)
	var (
		record     Analysis
		lists      [5]string
		createdRaw string
	)
	err := row.Scan(
		&record.ID, &record.CallID, &record.OwnerID, &record.Transcript,
		&record.Outcome, &record.OutcomeScore, &record.ExecutiveSummary,
		&lists[0], &lists[1], &lists[2], &lists[3], &lists[4],
		&createdRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no analysis for %s", ErrNotFound, callID)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}

	targets := []any{&record.Strengths, &record.Improvements, &record.PrincipleScores, &record.Objections, &record.RevivalScripts}
	for i, target := range targets {
		if err := json.Unmarshal([]byte(lists[i]), target); err != nil {
			return nil, fmt.Errorf("decode analysis column %d: %w", i, err)
		}
	}
	if record.Strengths == nil {
		record.Strengths = []string{}
	}
	if record.Improvements == nil {
		record.Improvements = []string{}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	return &record, nil
}

func encodeAnalysisLists(record *Analysis) ([5]string, error) {
	var out [5]string
	values := []any{record.Strengths, record.Improvements, record.PrincipleScores, record.Objections, record.RevivalScripts}
	for i, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return out, fmt.Errorf("encode analysis column %d: %w", i, err)
		}
		if string(data) == "null" {
			data = []byte("[]")
		}
		out[i] = string(data)
	}
	return out, nil
}
