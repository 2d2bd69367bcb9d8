package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bidforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanJob(row *sql.Row) (domain.ProposalJob, error) {
	var j domain.ProposalJob
	var result, owner sql.NullString
	err := row.Scan(&j.ID, &j.Status, &result, &owner, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if result.Valid {
		j.Result = &result.String
	}
	if owner.Valid {
		j.OwnerID = &owner.String
	}
	return j, err
}

func (r Repo) InsertJob(ctx context.Context, j domain.ProposalJob) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO jobs(id,status,result,owner_id,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		j.ID, j.Status, nullablePtr(j.Result), nullablePtr(j.OwnerID), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.ProposalJob, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT id,status,result,owner_id,created_at,updated_at FROM jobs WHERE id=?`, id))
}

// UpdateJobStatus advances a job's status, optionally setting the result.
// Returns ErrNotFound when no row matches.
func (r Repo) UpdateJobStatus(ctx context.Context, tx *sql.Tx, id string, status domain.JobStatus, result *string, updatedAt string) error {
	query := `UPDATE jobs SET status=?, updated_at=?`
	args := []any{status, updatedAt}
	if result != nil {
		query += `, result=?`
		args = append(args, *result)
	}
	query += ` WHERE id=?`
	args = append(args, id)
	var (
		res sql.Result
		err error
	)
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, args...)
	} else {
		res, err = r.DB.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// JobFilters narrows ListJobs results.
type JobFilters struct {
	Status          string
	OwnerID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.ProposalJob, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT id,status,result,owner_id,created_at,updated_at FROM jobs WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProposalJob
	for rows.Next() {
		var j domain.ProposalJob
		var result, owner sql.NullString
		if err := rows.Scan(&j.ID, &j.Status, &result, &owner, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if result.Valid {
			j.Result = &result.String
		}
		if owner.Valid {
			j.OwnerID = &owner.String
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, d domain.ProposalDocument) error {
	query := `INSERT INTO proposals(job_id,project_name,client_name,strategy_name,body,created_at) VALUES (?,?,?,?,?,?)`
	args := []any{d.JobID, d.ProjectName, d.ClientName, d.StrategyName, d.Body, d.CreatedAt}
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func (r Repo) GetProposal(ctx context.Context, jobID string) (domain.ProposalDocument, error) {
	var d domain.ProposalDocument
	err := r.DB.QueryRowContext(ctx,
		`SELECT job_id,project_name,client_name,strategy_name,body,created_at FROM proposals WHERE job_id=?`, jobID).
		Scan(&d.JobID, &d.ProjectName, &d.ClientName, &d.StrategyName, &d.Body, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
