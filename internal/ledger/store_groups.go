package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keeper/internal/detect"
	"keeper/internal/errs"
)

// SaveGroups upserts the groups produced by a detection pass. Group IDs are
// deterministic over membership, so re-running detection over the same
// library refreshes rows instead of duplicating them.
func (s *Store) SaveGroups(ctx context.Context, groups []detect.Group) error {
	for _, group := range groups {
		members, err := json.Marshal(group.Members)
		if err != nil {
			return fmt.Errorf("marshal members: %w", err)
		}
		rationale, err := json.Marshal(group.Rationale)
		if err != nil {
			return fmt.Errorf("marshal rationale: %w", err)
		}
		err = s.execWithRetry(ctx,
			`INSERT INTO groups (
                id, members_json, confidence, rationale_json, incomplete,
                suggested_keeper, status, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                confidence = excluded.confidence,
                rationale_json = excluded.rationale_json,
                incomplete = excluded.incomplete,
                suggested_keeper = excluded.suggested_keeper,
                updated_at = excluded.updated_at`,
			group.ID,
			string(members),
			group.Confidence,
			string(rationale),
			boolToInt(group.Incomplete),
			group.SuggestedKeeper,
			string(group.Status),
			formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("upsert group %s: %w", group.ID, err)
		}
	}
	return nil
}

// LoadGroups returns stored groups, optionally filtered by status. Groups
// come back ordered by first member ID, matching detection output order.
func (s *Store) LoadGroups(ctx context.Context, status detect.Status) ([]detect.Group, error) {
	query := `SELECT id, members_json, confidence, rationale_json, incomplete,
        suggested_keeper, status FROM groups`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY members_json"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []detect.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// GetGroup fetches one group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (detect.Group, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, members_json, confidence, rationale_json, incomplete,
            suggested_keeper, status FROM groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return detect.Group{}, errs.Wrap(errs.ErrNotFound, "ledger", "get group",
			fmt.Sprintf("group %s not found", id), nil)
	}
	return group, err
}

// UpdateGroupStatus transitions a group to resolved or ignored.
func (s *Store) UpdateGroupStatus(ctx context.Context, id string, status detect.Status) error {
	err := s.execWithRetry(ctx,
		"UPDATE groups SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update group status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (detect.Group, error) {
	var (
		group      detect.Group
		members    string
		rationale  string
		incomplete int
		status     string
	)
	err := row.Scan(&group.ID, &members, &group.Confidence, &rationale,
		&incomplete, &group.SuggestedKeeper, &status)
	if err != nil {
		return detect.Group{}, err
	}
	if err := json.Unmarshal([]byte(members), &group.Members); err != nil {
		return detect.Group{}, fmt.Errorf("unmarshal members: %w", err)
	}
	if err := json.Unmarshal([]byte(rationale), &group.Rationale); err != nil {
		return detect.Group{}, fmt.Errorf("unmarshal rationale: %w", err)
	}
	group.Incomplete = incomplete != 0
	group.Status = detect.Status(status)
	return group, nil
}
