package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
	"negotiator/pkg/workflow"
)

// SQLiteStore implements workflow.Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an initialized database connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Open initializes the database at dbPath and returns a store on it.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SaveWorkflow upserts the workflow record and replaces its review rows.
// Reviews are append-only in memory, so replacement preserves order via seq.
func (s *SQLiteStore) SaveWorkflow(w *workflow.Workflow) error {
	if w.ID == "" {
		return errors.New("workflow ID cannot be empty")
	}

	var planJSON sql.NullString
	if w.Plan != nil {
		data, err := json.Marshal(w.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal plan for workflow %s: %w", w.ID, err)
		}
		planJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO workflows (id, phase, requirement, plan_json, iteration, max_iterations, auto_approve, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			requirement = excluded.requirement,
			plan_json = excluded.plan_json,
			iteration = excluded.iteration,
			max_iterations = excluded.max_iterations,
			auto_approve = excluded.auto_approve,
			updated_at = excluded.updated_at`,
		w.ID, string(w.Phase), w.Requirement, planJSON, w.Iteration, w.MaxIterations,
		boolToInt(w.AutoApprove), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow %s: %w", w.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM reviews WHERE workflow_id = ?", w.ID); err != nil {
		return fmt.Errorf("failed to clear reviews for workflow %s: %w", w.ID, err)
	}
	for seq, r := range w.Reviews {
		issuesJSON, err := json.Marshal(r.Issues)
		if err != nil {
			return fmt.Errorf("failed to marshal issues: %w", err)
		}
		criteriaJSON, err := json.Marshal(r.CriteriaResults)
		if err != nil {
			return fmt.Errorf("failed to marshal criteria results: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO reviews (id, workflow_id, seq, confidence, tier, recommendation, summary, issues_json, criteria_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), w.ID, seq, r.Confidence, string(r.Tier), string(r.Recommendation),
			r.Summary, string(issuesJSON), string(criteriaJSON), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert review %d for workflow %s: %w", seq, w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", w.ID, err)
	}
	return nil
}

// LoadWorkflow retrieves a workflow with its review history.
func (s *SQLiteStore) LoadWorkflow(id string) (*workflow.Workflow, error) {
	w := &workflow.Workflow{}
	var phase string
	var planJSON sql.NullString
	var autoApprove int
	err := s.db.QueryRow(`
		SELECT id, phase, requirement, plan_json, iteration, max_iterations, auto_approve, created_at, updated_at
		FROM workflows WHERE id = ?`, id).Scan(
		&w.ID, &phase, &w.Requirement, &planJSON, &w.Iteration, &w.MaxIterations,
		&autoApprove, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	w.Phase = proto.Phase(phase)
	w.AutoApprove = autoApprove != 0
	if planJSON.Valid {
		var p plan.Plan
		if err := json.Unmarshal([]byte(planJSON.String), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan for workflow %s: %w", id, err)
		}
		w.Plan = &p
	}

	reviews, err := s.loadReviews(id)
	if err != nil {
		return nil, err
	}
	w.Reviews = reviews
	return w, nil
}

func (s *SQLiteStore) loadReviews(workflowID string) ([]review.Result, error) {
	rows, err := s.db.Query(`
		SELECT confidence, tier, recommendation, summary, issues_json, criteria_json, created_at
		FROM reviews WHERE workflow_id = ? ORDER BY seq`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for workflow %s: %w", workflowID, err)
	}
	defer func() { _ = rows.Close() }()

	var results []review.Result
	for rows.Next() {
		var r review.Result
		var tier, recommendation string
		var issuesJSON, criteriaJSON sql.NullString
		if err := rows.Scan(&r.Confidence, &tier, &recommendation, &r.Summary, &issuesJSON, &criteriaJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.Tier = plan.Tier(tier)
		r.Recommendation = review.Recommendation(recommendation)
		if issuesJSON.Valid {
			if err := json.Unmarshal([]byte(issuesJSON.String), &r.Issues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal review issues: %w", err)
			}
		}
		if criteriaJSON.Valid {
			if err := json.Unmarshal([]byte(criteriaJSON.String), &r.CriteriaResults); err != nil {
				return nil, fmt.Errorf("failed to unmarshal criteria results: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review rows: %w", err)
	}
	return results, nil
}

// ListWorkflows returns all workflows with their review histories.
func (s *SQLiteStore) ListWorkflows() ([]*workflow.Workflow, error) {
	rows, err := s.db.Query("SELECT id FROM workflows ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workflow ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow rows: %w", err)
	}

	out := make([]*workflow.Workflow, 0, len(ids))
	for _, id := range ids {
		w, err := s.LoadWorkflow(id)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// SaveConversation upserts the engine snapshot for a workflow.
func (s *SQLiteStore) SaveConversation(workflowID string, snapshot []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (workflow_id, snapshot, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(workflow_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		workflowID, string(snapshot))
	if err != nil {
		return fmt.Errorf("failed to save conversation for workflow %s: %w", workflowID, err)
	}
	return nil
}

// LoadConversation returns the engine snapshot, or nil when absent.
func (s *SQLiteStore) LoadConversation(workflowID string) ([]byte, error) {
	var snapshot string
	err := s.db.QueryRow("SELECT snapshot FROM conversations WHERE workflow_id = ?", workflowID).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation for workflow %s: %w", workflowID, err)
	}
	return []byte(snapshot), nil
}

// DeleteConversation removes the engine snapshot for a workflow.
func (s *SQLiteStore) DeleteConversation(workflowID string) error {
	if _, err := s.db.Exec("DELETE FROM conversations WHERE workflow_id = ?", workflowID); err != nil {
		return fmt.Errorf("failed to delete conversation for workflow %s: %w", workflowID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
