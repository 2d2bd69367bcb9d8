// Package poller drives the interactive generation flow over the HTTP API:
// research, sequential rate-limited drafting with partial results, then a
// dispatched background job polled to completion. The caller always receives
// a coherent proposal; when everything fails a static template stands in.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	bidforgesdk "bidforge/sdk/go"
)

// ErrTimeout reports that the attempt ceiling was exhausted while the job was
// still running. The background job itself is not retracted.
var ErrTimeout = errors.New("job timed out")

// ErrJobFailed reports a job that reached the failed state.
var ErrJobFailed = errors.New("job failed")

// Progress receives stage updates as the flow advances. detail carries the
// strategy name during drafting and the job status while polling.
type Progress func(stage, detail string)

// Options tunes the flow. Zero values take the defaults below.
type Options struct {
	Interval       time.Duration
	MaxAttempts    int
	DraftRateEvery time.Duration
	Progress       Progress
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 60
	}
	if o.DraftRateEvery <= 0 {
		o.DraftRateEvery = 2 * time.Second
	}
	return o
}

// Outcome is everything the flow produced. Proposal is always non-empty;
// Fallback marks the static template substituted after a total failure.
type Outcome struct {
	Research  bidforgesdk.ResearchSummary
	Drafts    []bidforgesdk.StrategyDraft
	Critiques []bidforgesdk.CritiqueResult
	Selected  bidforgesdk.StrategyDraft
	JobID     string
	Proposal  string
	Fallback  bool
}

// Poller runs the interactive flow against one API endpoint.
type Poller struct {
	client  *bidforgesdk.Client
	opts    Options
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(client *bidforgesdk.Client, opts Options) *Poller {
	opts = opts.withDefaults()
	return &Poller{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.DraftRateEvery), 1),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Poller) progress(stage, detail string) {
	if p.opts.Progress != nil {
		p.opts.Progress(stage, detail)
	}
}

var strategies = []string{"Safe", "Innovative", "Disruptive"}

// Run drives the flow end to end. On a total failure the returned Outcome
// still carries the static fallback proposal alongside the error.
func (p *Poller) Run(ctx context.Context, projectName, clientName, rfpText string) (Outcome, error) {
	out := Outcome{}

	p.progress("research", "")
	research, err := p.client.Research(ctx, projectName, clientName, rfpText)
	if err != nil {
		return p.fail(out, projectName, clientName, fmt.Errorf("research: %w", err))
	}
	out.Research = research
	researchJSON, _ := json.Marshal(research)

	// Drafts run sequentially; the limiter spaces the calls so a burst of
	// strategies does not trip provider rate limits. Each draft is critiqued
	// as soon as it lands, rather than after all drafting, so the progress
	// callback can stream a scored partial result per strategy; a critique
	// reads only its own draft, so the interleave changes no outcome.
	for _, strategy := range strategies {
		if err := p.limiter.Wait(ctx); err != nil {
			return p.fail(out, projectName, clientName, err)
		}
		p.progress("draft", strategy)
		draft, err := p.client.Draft(ctx, strategy, projectName, clientName, string(researchJSON))
		if err != nil {
			return p.fail(out, projectName, clientName, fmt.Errorf("draft %s: %w", strategy, err))
		}
		out.Drafts = append(out.Drafts, draft)

		p.progress("critique", strategy)
		critique, err := p.client.Critique(ctx, draft.ExecutiveSummary)
		if err != nil {
			return p.fail(out, projectName, clientName, fmt.Errorf("critique %s: %w", strategy, err))
		}
		out.Critiques = append(out.Critiques, critique)
	}
	out.Selected = p.selectBest(out)

	p.progress("dispatch", "")
	jobID, err := p.client.Dispatch(ctx, projectName, clientName, rfpText, nil)
	if err != nil {
		return p.fail(out, projectName, clientName, fmt.Errorf("dispatch: %w", err))
	}
	out.JobID = jobID

	if _, err := p.wait(ctx, jobID); err != nil {
		return p.fail(out, projectName, clientName, err)
	}
	proposal, err := p.client.GetProposal(ctx, jobID)
	if err != nil {
		return p.fail(out, projectName, clientName, fmt.Errorf("fetch proposal: %w", err))
	}
	out.Proposal = proposal.Body
	return out, nil
}

// wait polls until the job is terminal or the attempt ceiling is reached.
// Exceeding the ceiling is a timeout, not a job failure.
func (p *Poller) wait(ctx context.Context, jobID string) (bidforgesdk.Job, error) {
	var job bidforgesdk.Job
	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		var err error
		job, err = p.client.GetJob(ctx, jobID)
		if err != nil {
			return job, fmt.Errorf("poll job: %w", err)
		}
		p.progress("poll", job.Status)
		switch job.Status {
		case "complete":
			return job, nil
		case "failed":
			msg := ""
			if job.Result != nil {
				msg = *job.Result
			}
			return job, fmt.Errorf("%w: %s", ErrJobFailed, msg)
		}
		if err := p.sleep(ctx, p.opts.Interval); err != nil {
			return job, err
		}
	}
	return job, ErrTimeout
}

func (p *Poller) selectBest(out Outcome) bidforgesdk.StrategyDraft {
	best := 0
	for i := range out.Critiques {
		if out.Critiques[i].Score > out.Critiques[best].Score {
			best = i
		}
	}
	if best < len(out.Drafts) {
		return out.Drafts[best]
	}
	return bidforgesdk.StrategyDraft{}
}

func (p *Poller) fail(out Outcome, projectName, clientName string, err error) (Outcome, error) {
	out.Proposal = FallbackProposal(projectName, clientName)
	out.Fallback = true
	return out, err
}

// FallbackProposal is the static document substituted when the flow fails
// entirely.
func FallbackProposal(projectName, clientName string) string {
	return fmt.Sprintf(`(Mock) PROPOSAL: %s

Prepared for %s.

UNDERSTANDING OF REQUIREMENTS
Automated generation was unavailable. This template outlines the structure of
a complete response so work can continue by hand.

PROPOSED SOLUTION
Describe the delivery approach, team and technology.

SOCIAL VALUE
Describe local employment, skills and community commitments.

RISK MANAGEMENT
Describe the top delivery risks and their mitigations.

PRICING APPROACH
Describe the commercial model and assumptions.
`, projectName, clientName)
}
