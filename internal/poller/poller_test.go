package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bidforgesdk "bidforge/sdk/go"
)

// stubAPI is a canned bidforge API. Job status answers are served in order,
// repeating the last one.
type stubAPI struct {
	mu          sync.Mutex
	jobStatuses []string
	statusIdx   int
	polls       int
	failDrafts  bool
	failAll     bool
}

func (s *stubAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("POST /v0/stages/research", func(w http.ResponseWriter, r *http.Request) {
		if s.failAll {
			http.Error(w, `{"error":{"code":"internal_error"}}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, bidforgesdk.ResearchSummary{
			ClientNews:      []string{"news"},
			CompetitorWins:  []string{"win"},
			PainPoints:      []string{"pain"},
			EvidenceBullets: []string{"evidence"},
		})
	})
	mux.HandleFunc("POST /v0/stages/draft", func(w http.ResponseWriter, r *http.Request) {
		if s.failAll || s.failDrafts {
			http.Error(w, `{"error":{"code":"internal_error"}}`, http.StatusInternalServerError)
			return
		}
		var req struct {
			StrategyName string `json:"strategy_name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, bidforgesdk.StrategyDraft{
			StrategyName:     req.StrategyName,
			ExecutiveSummary: req.StrategyName + " summary",
			KeyTheme:         "theme",
		})
	})
	mux.HandleFunc("POST /v0/stages/critique", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		score := 6.0
		if strings.HasPrefix(req.Text, "Innovative") {
			score = 9.0
		}
		writeJSON(w, bidforgesdk.CritiqueResult{Score: score, Status: "REJECT", Critique: []string{"x"}})
	})
	mux.HandleFunc("POST /v0/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"job_id": "job-1"})
	})
	mux.HandleFunc("GET /v0/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.polls++
		status := "complete"
		if len(s.jobStatuses) > 0 {
			status = s.jobStatuses[s.statusIdx]
			if s.statusIdx < len(s.jobStatuses)-1 {
				s.statusIdx++
			}
		}
		s.mu.Unlock()
		var result *string
		if status == "failed" {
			msg := "drafting exploded"
			result = &msg
		}
		writeJSON(w, bidforgesdk.Job{ID: "job-1", Status: status, Result: result})
	})
	mux.HandleFunc("GET /v0/proposals/job-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, bidforgesdk.Proposal{JobID: "job-1", Body: "Final proposal body."})
	})
	return mux
}

func newPoller(t *testing.T, stub *stubAPI, opts Options) (*Poller, func()) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	if opts.DraftRateEvery == 0 {
		opts.DraftRateEvery = time.Nanosecond
	}
	p := New(bidforgesdk.New(srv.URL), opts)
	return p, srv.Close
}

func TestRunHappyPath(t *testing.T) {
	stub := &stubAPI{jobStatuses: []string{"pending", "drafting", "complete"}}
	var mu sync.Mutex
	var stages []string
	p, cleanup := newPoller(t, stub, Options{
		MaxAttempts: 20,
		Progress: func(stage, detail string) {
			mu.Lock()
			stages = append(stages, stage)
			mu.Unlock()
		},
	})
	defer cleanup()

	out, err := p.Run(context.Background(), "Casework Platform", "Riverdale Council", "rfp")
	require.NoError(t, err)

	assert.Equal(t, "Final proposal body.", out.Proposal)
	assert.False(t, out.Fallback)
	assert.Equal(t, "job-1", out.JobID)
	require.Len(t, out.Drafts, 3)
	assert.Equal(t, "Innovative", out.Selected.StrategyName)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, stages, "research")
	assert.Contains(t, stages, "draft")
	assert.Contains(t, stages, "dispatch")
	assert.Contains(t, stages, "poll")
}

func TestRunTimeoutDistinctFromFailure(t *testing.T) {
	stub := &stubAPI{jobStatuses: []string{"drafting"}}
	p, cleanup := newPoller(t, stub, Options{MaxAttempts: 3})
	defer cleanup()

	out, err := p.Run(context.Background(), "P", "C", "")
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrJobFailed)
	assert.True(t, out.Fallback)
	assert.Contains(t, out.Proposal, "(Mock)")
	assert.Equal(t, 3, stub.polls)
}

func TestRunReportedFailure(t *testing.T) {
	stub := &stubAPI{jobStatuses: []string{"researching", "failed"}}
	p, cleanup := newPoller(t, stub, Options{MaxAttempts: 10})
	defer cleanup()

	out, err := p.Run(context.Background(), "P", "C", "")
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "drafting exploded")
	assert.True(t, out.Fallback)
	assert.NotEmpty(t, out.Proposal)
}

func TestRunDraftFailureYieldsFallbackProposal(t *testing.T) {
	stub := &stubAPI{failDrafts: true}
	p, cleanup := newPoller(t, stub, Options{MaxAttempts: 2})
	defer cleanup()

	out, err := p.Run(context.Background(), "Casework Platform", "Riverdale Council", "")
	require.Error(t, err)
	assert.True(t, out.Fallback)
	assert.Contains(t, out.Proposal, "Casework Platform")
	assert.Contains(t, out.Proposal, "Riverdale Council")
	// research succeeded before the failure and is still surfaced
	assert.NotEmpty(t, out.Research.ClientNews)
}

func TestRunTotalOutage(t *testing.T) {
	stub := &stubAPI{failAll: true}
	p, cleanup := newPoller(t, stub, Options{MaxAttempts: 2})
	defer cleanup()

	out, err := p.Run(context.Background(), "P", "C", "")
	require.Error(t, err)
	assert.True(t, out.Fallback)
	assert.NotEmpty(t, out.Proposal)
}

func TestRunCancelledDuringPolling(t *testing.T) {
	stub := &stubAPI{jobStatuses: []string{"drafting"}}
	p, cleanup := newPoller(t, stub, Options{MaxAttempts: 1000, Interval: 50 * time.Millisecond})
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := p.Run(ctx, "P", "C", "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFallbackProposalNamesParties(t *testing.T) {
	body := FallbackProposal("Casework Platform", "Riverdale Council")
	assert.Contains(t, body, "Casework Platform")
	assert.Contains(t, body, "Riverdale Council")
	assert.Contains(t, body, "PRICING APPROACH")
}
