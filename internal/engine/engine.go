// Package engine orchestrates proposal generation jobs over the SQLite store.
// Dispatch returns immediately; the pipeline runs on the queue's workers and
// advances the job record through its status machine as each stage begins.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bidforge/internal/agent"
	"bidforge/internal/config"
	"bidforge/internal/domain"
	"bidforge/internal/events"
	"bidforge/internal/llm"
	"bidforge/internal/queue"
	"bidforge/internal/repo"
	"bidforge/internal/workflow"
)

// TaskGenerate is the queue task name for the full pipeline run.
const TaskGenerate = "proposal.generate"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Queue  *queue.Queue
	Log    *slog.Logger
	Now    func() time.Time

	researcher agent.Researcher
	drafter    agent.Drafter
	critic     agent.Critic
	humanizer  agent.Humanizer
	writer     agent.Writer
}

// New wires the engine and registers its queue handler. q may be nil when
// only the synchronous per-stage entry points are needed.
func New(db *sql.DB, cfg *config.Config, client llm.Client, q *queue.Queue, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	maxTokens := cfg.LLM.MaxTokens
	e := &Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Queue:      q,
		Log:        log,
		Now:        time.Now,
		researcher: agent.NewResearcher(client, cfg.Temperature("researcher", agent.DefaultResearcherTemperature), maxTokens),
		drafter:    agent.NewDrafter(client, cfg.Temperature("drafter", agent.DefaultDrafterTemperature), maxTokens),
		critic:     agent.NewCritic(client, cfg.Temperature("critic", agent.DefaultCriticTemperature), maxTokens),
		humanizer:  agent.NewHumanizer(client, cfg.Temperature("humanizer", agent.DefaultHumanizerTemperature), maxTokens),
		writer:     agent.NewWriter(client, cfg.Temperature("writer", agent.DefaultWriterTemperature), maxTokens),
	}
	if q != nil {
		q.Register(TaskGenerate, e.handleGenerate)
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

type generatePayload struct {
	JobID string                 `json:"job_id"`
	Input domain.GenerationInput `json:"input"`
}

// GenerationResult is the terminal job result stored on the job record.
type GenerationResult struct {
	StrategyName domain.Strategy       `json:"strategy_name"`
	Title        string                `json:"title"`
	Body         string                `json:"body"`
	Score        float64               `json:"score"`
	Status       domain.CritiqueStatus `json:"status"`
	ChangesMade  []string              `json:"changes_made"`
	Iterations   int                   `json:"iterations"`
}

// Dispatch creates a pending job, enqueues the pipeline run and returns the
// job id without waiting for any model call.
func (e *Engine) Dispatch(ctx context.Context, input domain.GenerationInput) (string, error) {
	if input.ProjectName == "" {
		return "", errors.New("project_name is required")
	}
	if input.ClientName == "" {
		return "", errors.New("client_name is required")
	}
	id := uuid.New().String()
	now := e.nowStr()
	job := domain.ProposalJob{
		ID:        id,
		Status:    domain.JobPending,
		OwnerID:   input.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO jobs(id,status,result,owner_id,created_at,updated_at) VALUES (?,?,NULL,?,?,?)`,
		job.ID, job.Status, nullablePtr(job.OwnerID), job.CreatedAt, job.UpdatedAt); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "job.dispatched", "job", id, events.EventPayload{
		"project_name": input.ProjectName,
		"client_name":  input.ClientName,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(generatePayload{JobID: id, Input: input})
	if err != nil {
		return "", err
	}
	if e.Queue == nil {
		return "", errors.New("no queue configured")
	}
	if err := e.Queue.Enqueue(TaskGenerate, payload); err != nil {
		e.markFailed(ctx, id, "enqueue: "+err.Error())
		return "", err
	}
	return id, nil
}

func (e *Engine) handleGenerate(ctx context.Context, payload []byte) error {
	var p generatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", TaskGenerate, err)
	}
	return e.Execute(ctx, p.JobID, p.Input)
}

// Execute runs the full pipeline for a job. Redelivery of a terminal job is a
// no-op; a fatal error persists failed with a message. Individual model call
// failures are absorbed by stage fallbacks and never fake a failure.
func (e *Engine) Execute(ctx context.Context, jobID string, input domain.GenerationInput) error {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := e.runPipeline(ctx, jobID, input); err != nil {
		if ferr := e.markFailed(ctx, jobID, err.Error()); ferr != nil {
			return fmt.Errorf("mark failed: %v (cause: %w)", ferr, err)
		}
		return err
	}
	return nil
}

func (e *Engine) runPipeline(ctx context.Context, jobID string, input domain.GenerationInput) error {
	if err := e.advance(ctx, jobID, domain.JobResearching); err != nil {
		return err
	}
	research, err := e.researcher.Research(ctx, input.ProjectName, input.ClientName, input.RFPText)
	if err != nil {
		e.Log.Warn("research failed, using fallback", "job", jobID, "error", err)
		research = agent.FallbackResearchSummary(input.ClientName)
	}

	graph := workflow.New(e.drafter, e.critic, workflow.Options{
		MaxIterations: e.Config.Workflow.MaxIterations,
		RequireAccept: e.Config.Workflow.RequireAccept,
		Progress: func(phase string) {
			if err := e.advance(ctx, jobID, domain.JobStatus(phase)); err != nil {
				e.Log.Warn("status advance failed", "job", jobID, "phase", phase, "error", err)
			}
		},
	})
	state, err := graph.Run(ctx, workflow.State{
		ProjectName: input.ProjectName,
		ClientName:  input.ClientName,
		Research:    research,
	})
	if err != nil {
		return err
	}
	best, _, ok := state.Best()
	if !ok {
		return errors.New("no draft produced")
	}

	if err := e.advance(ctx, jobID, domain.JobHumanizing); err != nil {
		return err
	}
	doc, err := e.writer.Write(ctx, input.ProjectName, input.ClientName, best)
	if err != nil {
		e.Log.Warn("write failed, using fallback", "job", jobID, "error", err)
		doc = agent.FallbackDocument(input.ProjectName, input.ClientName)
	}
	final, err := e.critic.Critique(ctx, doc.Body)
	if err != nil {
		e.Log.Warn("final critique failed, using fallback", "job", jobID, "error", err)
		final = agent.FallbackCritique()
	}
	humanized, err := e.humanizer.Humanize(ctx, doc.Body)
	if err != nil {
		e.Log.Warn("humanize failed, keeping original text", "job", jobID, "error", err)
		humanized = agent.FallbackHumanized(doc.Body)
	}

	result := GenerationResult{
		StrategyName: best.StrategyName,
		Title:        doc.Title,
		Body:         humanized.RefinedText,
		Score:        final.Score,
		Status:       final.Status,
		ChangesMade:  humanized.ChangesMade,
		Iterations:   state.Iteration,
	}
	return e.complete(ctx, jobID, input, result)
}

// complete persists the result, the proposal document, the credit deduction
// and the audit event in one transaction.
func (e *Engine) complete(ctx context.Context, jobID string, input domain.GenerationInput, result GenerationResult) error {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := ensureJobTransition(job.Status, domain.JobComplete); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	resultJSON := string(data)
	now := e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateJobStatus(ctx, tx, jobID, domain.JobComplete, &resultJSON, now); err != nil {
		return err
	}
	if err := e.Repo.InsertProposal(ctx, tx, domain.ProposalDocument{
		JobID:        jobID,
		ProjectName:  input.ProjectName,
		ClientName:   input.ClientName,
		StrategyName: result.StrategyName,
		Body:         result.Body,
		CreatedAt:    now,
	}); err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	if input.OwnerID != nil {
		if err := e.Repo.DeductCredit(ctx, tx, *input.OwnerID, now); err != nil {
			return fmt.Errorf("deduct credit: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, "job.completed", "job", jobID, events.EventPayload{
		"strategy_name": result.StrategyName,
		"score":         result.Score,
		"iterations":    result.Iterations,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// advance moves the job to the given status. Re-entering the current status
// is a no-op so looped rounds do not trip the transition guard.
func (e *Engine) advance(ctx context.Context, jobID string, to domain.JobStatus) error {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == to {
		return nil
	}
	if err := ensureJobTransition(job.Status, to); err != nil {
		return err
	}
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateJobStatus(ctx, tx, jobID, to, nil, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "job.stage", "job", jobID, events.EventPayload{
		"from": job.Status,
		"to":   to,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// markFailed persists failed with a message unless the job already reached a
// terminal state.
func (e *Engine) markFailed(ctx context.Context, jobID, message string) error {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateJobStatus(ctx, tx, jobID, domain.JobFailed, &message, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "job.failed", "job", jobID, events.EventPayload{"message": message}); err != nil {
		return err
	}
	return tx.Commit()
}

// Poll returns the current job record. Terminal records never change again.
func (e *Engine) Poll(ctx context.Context, jobID string) (domain.ProposalJob, error) {
	return e.Repo.GetJob(ctx, jobID)
}

func ensureJobTransition(oldStatus, newStatus domain.JobStatus) error {
	if newStatus == domain.JobFailed {
		if oldStatus.Terminal() {
			return fmt.Errorf("job already %s", oldStatus)
		}
		return nil
	}
	switch oldStatus {
	case domain.JobPending:
		if newStatus == domain.JobResearching {
			return nil
		}
	case domain.JobResearching:
		if newStatus == domain.JobDrafting {
			return nil
		}
	case domain.JobDrafting:
		if newStatus == domain.JobCritiquing {
			return nil
		}
	case domain.JobCritiquing:
		if newStatus == domain.JobDrafting || newStatus == domain.JobHumanizing {
			return nil
		}
	case domain.JobHumanizing:
		if newStatus == domain.JobComplete {
			return nil
		}
	}
	return fmt.Errorf("invalid job status transition %s -> %s", oldStatus, newStatus)
}

// Research is the single-shot entry point for the interactive mode. Model
// failures degrade to the labeled fallback; the caller always gets a usable
// summary.
func (e *Engine) Research(ctx context.Context, projectName, clientName, rfpText string) domain.ResearchSummary {
	res, err := e.researcher.Research(ctx, projectName, clientName, rfpText)
	if err != nil {
		e.Log.Warn("research failed, using fallback", "error", err)
		return agent.FallbackResearchSummary(clientName)
	}
	return res
}

// DraftStrategy drafts one posture. An unknown strategy is a caller error;
// model failures degrade to the labeled fallback.
func (e *Engine) DraftStrategy(ctx context.Context, strategy domain.Strategy, projectName, clientName, research string) (domain.StrategyDraft, error) {
	if !domain.ValidStrategy(strategy) {
		return domain.StrategyDraft{}, fmt.Errorf("unknown strategy %q", strategy)
	}
	draft, err := e.drafter.Draft(ctx, strategy, projectName, clientName, research)
	if err != nil {
		e.Log.Warn("draft failed, using fallback", "strategy", strategy, "error", err)
		return agent.FallbackDraft(strategy, projectName), nil
	}
	return draft, nil
}

// Critique scores text against the fixed threshold.
func (e *Engine) Critique(ctx context.Context, text string) domain.CritiqueResult {
	res, err := e.critic.Critique(ctx, text)
	if err != nil {
		e.Log.Warn("critique failed, using fallback", "error", err)
		return agent.FallbackCritique()
	}
	return res
}

// Humanize rewrites text for tone; on failure the original text comes back
// unchanged with the failure recorded in the changelog.
func (e *Engine) Humanize(ctx context.Context, text string) domain.HumanizedText {
	res, err := e.humanizer.Humanize(ctx, text)
	if err != nil {
		e.Log.Warn("humanize failed, keeping original text", "error", err)
		return agent.FallbackHumanized(text)
	}
	return res
}

// Write expands a draft into the full document.
func (e *Engine) Write(ctx context.Context, projectName, clientName string, draft domain.StrategyDraft) domain.WrittenDocument {
	doc, err := e.writer.Write(ctx, projectName, clientName, draft)
	if err != nil {
		e.Log.Warn("write failed, using fallback", "error", err)
		return agent.FallbackDocument(projectName, clientName)
	}
	return doc
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
