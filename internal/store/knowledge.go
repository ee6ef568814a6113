package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clawflow/clawflow/internal/models"
)

const knowledgeSelectColumns = `SELECT
	id, key, summary, content, category, tags, source, source_id, status, token_estimate, global_mirror_id, created_at, updated_at`

// CreateKnowledgeEntry inserts a new entry, defaulting to candidate status.
func CreateKnowledgeEntry(db *sql.DB, e models.KnowledgeEntry) (*models.KnowledgeEntry, error) {
	if e.Key == "" {
		return nil, models.NewValidationError("knowledge entry key is required", nil)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.KnowledgeCandidate
	}
	if e.Source == "" {
		e.Source = models.SourceManual
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	return TransactValue(db, func(tx *sql.Tx) (*models.KnowledgeEntry, error) {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO knowledge (id, key, summary, content, category, tags, source, source_id, status, token_estimate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Key, e.Summary, e.Content, string(e.Category), string(tagsJSON), string(e.Source), nullableString(e.SourceID), string(e.Status), e.TokenEstimate)
		if err != nil {
			return nil, fmt.Errorf("insert knowledge entry: %w", err)
		}
		return getKnowledgeTx(tx, e.ID)
	})
}

// CreateOrUpdateKnowledgeEntry dedups on (key, status): if an entry with the
// same key and status already exists it is updated in place (summary,
// content, category, tags and token estimate replaced by the new values)
// rather than duplicated, matching the
// upsert-by-key pattern agents rely on when repeatedly surfacing the same
// lesson across pipeline runs.
func CreateOrUpdateKnowledgeEntry(db *sql.DB, e models.KnowledgeEntry) (*models.KnowledgeEntry, error) {
	if e.Key == "" {
		return nil, models.NewValidationError("knowledge entry key is required", nil)
	}
	if e.Status == "" {
		e.Status = models.KnowledgeCandidate
	}

	return TransactValue(db, func(tx *sql.Tx) (*models.KnowledgeEntry, error) {
		var existingID string
		err := tx.QueryRowContext(context.Background(), `
			SELECT id FROM knowledge WHERE key = ? AND status = ?
		`, e.Key, string(e.Status)).Scan(&existingID)

		if err == sql.ErrNoRows {
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			if e.Source == "" {
				e.Source = models.SourceManual
			}
			tagsJSON, err := json.Marshal(e.Tags)
			if err != nil {
				return nil, fmt.Errorf("marshal tags: %w", err)
			}
			_, err = tx.ExecContext(context.Background(), `
				INSERT INTO knowledge (id, key, summary, content, category, tags, source, source_id, status, token_estimate)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, e.ID, e.Key, e.Summary, e.Content, string(e.Category), string(tagsJSON), string(e.Source), nullableString(e.SourceID), string(e.Status), e.TokenEstimate)
			if err != nil {
				return nil, fmt.Errorf("insert knowledge entry: %w", err)
			}
			return getKnowledgeTx(tx, e.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup existing knowledge entry: %w", err)
		}

		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		_, err = tx.ExecContext(context.Background(), `
			UPDATE knowledge SET summary = ?, content = ?, category = ?, tags = ?, token_estimate = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, e.Summary, e.Content, string(e.Category), string(tagsJSON), e.TokenEstimate, existingID)
		if err != nil {
			return nil, fmt.Errorf("update existing knowledge entry: %w", err)
		}
		return getKnowledgeTx(tx, existingID)
	})
}

func getKnowledgeTx(tx *sql.Tx, id string) (*models.KnowledgeEntry, error) {
	row := tx.QueryRowContext(context.Background(), knowledgeSelectColumns+` FROM knowledge WHERE id = ?`, id)
	e, err := scanKnowledge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewValidationError(fmt.Sprintf("knowledge entry %s not found", id), nil)
		}
		return nil, fmt.Errorf("scan knowledge entry %s: %w", id, err)
	}
	return e, nil
}

// GetKnowledgeEntry loads an entry by id.
func GetKnowledgeEntry(db *sql.DB, id string) (*models.KnowledgeEntry, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.KnowledgeEntry, error) {
		return getKnowledgeTx(tx, id)
	})
}

// GetKnowledgeEntryByKey returns the active entry for a key, or the most
// recent candidate if none is active yet.
func GetKnowledgeEntryByKey(db *sql.DB, key string) (*models.KnowledgeEntry, error) {
	row := db.QueryRowContext(context.Background(), knowledgeSelectColumns+`
		FROM knowledge WHERE key = ?
		ORDER BY CASE status WHEN 'active' THEN 0 WHEN 'candidate' THEN 1 ELSE 2 END, updated_at DESC
		LIMIT 1
	`, key)
	e, err := scanKnowledge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge entry by key %q: %w", key, err)
	}
	return e, nil
}

func scanKnowledge(row scannable) (*models.KnowledgeEntry, error) {
	var e models.KnowledgeEntry
	var category, source, status string
	var tagsJSON string
	var sourceID, globalMirrorID sql.NullString

	if err := row.Scan(&e.ID, &e.Key, &e.Summary, &e.Content, &category, &tagsJSON, &source, &sourceID, &status, &e.TokenEstimate, &globalMirrorID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = models.KnowledgeCategory(category)
	e.Source = models.KnowledgeSource(source)
	e.Status = models.KnowledgeStatus(status)
	e.SourceID = nullableFromSQL(sourceID)
	e.GlobalMirrorID = nullableFromSQL(globalMirrorID)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
	}
	return &e, nil
}

// ListKnowledgeFilter narrows ListKnowledge.
type ListKnowledgeFilter struct {
	Status   models.KnowledgeStatus
	Category models.KnowledgeCategory
}

// ListKnowledge returns entries matching filter, newest first.
func ListKnowledge(db *sql.DB, filter ListKnowledgeFilter) ([]*models.KnowledgeEntry, error) {
	query := knowledgeSelectColumns + ` FROM knowledge WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListCandidates returns every knowledge entry still awaiting promotion.
func ListCandidates(db *sql.DB) ([]*models.KnowledgeEntry, error) {
	return ListKnowledge(db, ListKnowledgeFilter{Status: models.KnowledgeCandidate})
}

// PromoteCandidate flips a candidate entry to active. If another active
// entry already exists for the same key, it is archived first so the
// unique (key, status) index never collides.
func PromoteCandidate(db *sql.DB, id string) (*models.KnowledgeEntry, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.KnowledgeEntry, error) {
		candidate, err := getKnowledgeTx(tx, id)
		if err != nil {
			return nil, err
		}
		if candidate.Status != models.KnowledgeCandidate {
			return nil, models.NewPreconditionError(
				fmt.Sprintf("knowledge entry %s is not a candidate", id), nil)
		}

		_, err = tx.ExecContext(context.Background(), `
			UPDATE knowledge SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ? AND status = ?
		`, string(models.KnowledgeArchived), candidate.Key, string(models.KnowledgeActive))
		if err != nil {
			return nil, fmt.Errorf("archive previous active entry for key %q: %w", candidate.Key, err)
		}

		_, err = tx.ExecContext(context.Background(), `
			UPDATE knowledge SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, string(models.KnowledgeActive), id)
		if err != nil {
			return nil, fmt.Errorf("promote knowledge entry %s: %w", id, err)
		}
		return getKnowledgeTx(tx, id)
	})
}

// UpdateKnowledgeEntry applies a free-form content/summary/tags edit to an
// existing entry, bumping updated_at.
func UpdateKnowledgeEntry(db *sql.DB, id, summary, content string, tags []string) (*models.KnowledgeEntry, error) {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return TransactValue(db, func(tx *sql.Tx) (*models.KnowledgeEntry, error) {
		res, err := tx.ExecContext(context.Background(), `
			UPDATE knowledge SET summary = ?, content = ?, tags = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, summary, content, string(tagsJSON), id)
		if err != nil {
			return nil, fmt.Errorf("update knowledge entry %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, models.NewValidationError(fmt.Sprintf("knowledge entry %s not found", id), nil)
		}
		return getKnowledgeTx(tx, id)
	})
}

// DeleteKnowledgeEntry removes an entry outright.
func DeleteKnowledgeEntry(db *sql.DB, id string) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `DELETE FROM knowledge WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete knowledge entry %s: %w", id, err)
		}
		return nil
	})
}

// KnowledgeIndex adapts a project database to prompt.KnowledgeIndex,
// supplying the one-line-per-entry active knowledge summary for prompt
// assembly.
type KnowledgeIndex struct {
	DB *sql.DB
}

// IndexLines implements prompt.KnowledgeIndex.
func (k KnowledgeIndex) IndexLines() ([]string, error) {
	entries, err := ListKnowledge(k.DB, ListKnowledgeFilter{Status: models.KnowledgeActive})
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", e.Key, e.Summary))
	}
	return lines, nil
}

// KnowledgeSaver adapts a project database to the sdkrunner.KnowledgeSaver
// interface, so the SDK Runner can persist save_knowledge tool calls without
// importing store directly.
type KnowledgeSaver struct {
	DB *sql.DB
}

// SaveCandidate inserts or refreshes a candidate knowledge entry surfaced by
// an agent mid-run. Ignores ctx cancellation; a candidate is best-effort and
// should never abort the stage that produced it.
func (s KnowledgeSaver) SaveCandidate(_ context.Context, key, summary, content string) error {
	_, err := CreateOrUpdateKnowledgeEntry(s.DB, models.KnowledgeEntry{
		Key:     key,
		Summary: summary,
		Content: content,
		Source:  models.SourcePipeline,
		Status:  models.KnowledgeCandidate,
	})
	return err
}
