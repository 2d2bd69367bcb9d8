// Package workflow runs the draft-and-critique loop of the generation
// pipeline as a small graph over immutable state snapshots. Nodes fan out
// independent model calls and merge their results additively; the loop policy
// is configurable.
package workflow

import (
	"context"
	"strings"

	"bidforge/internal/agent"
	"bidforge/internal/domain"
)

// State is one snapshot of a generation run. Nodes never mutate a State they
// received; they return a copy with their additions merged in.
type State struct {
	ProjectName string
	ClientName  string
	Research    domain.ResearchSummary
	Drafts      map[domain.Strategy]domain.StrategyDraft
	Critiques   map[domain.Strategy]domain.CritiqueResult
	Iteration   int
}

// clone copies the state with fresh maps so node merges stay additive.
func (s State) clone() State {
	next := s
	next.Drafts = make(map[domain.Strategy]domain.StrategyDraft, len(s.Drafts))
	for k, v := range s.Drafts {
		next.Drafts[k] = v
	}
	next.Critiques = make(map[domain.Strategy]domain.CritiqueResult, len(s.Critiques))
	for k, v := range s.Critiques {
		next.Critiques[k] = v
	}
	return next
}

// AllAccepted reports whether every strategy has a critique clearing the
// threshold.
func (s State) AllAccepted() bool {
	for _, strategy := range domain.Strategies() {
		c, ok := s.Critiques[strategy]
		if !ok || !c.Accepted() {
			return false
		}
	}
	return true
}

// Best returns the draft with the highest critique score, preferring earlier
// strategies on a tie. ok is false when no drafts exist.
func (s State) Best() (domain.StrategyDraft, domain.CritiqueResult, bool) {
	var (
		bestDraft    domain.StrategyDraft
		bestCritique domain.CritiqueResult
		found        bool
	)
	for _, strategy := range domain.Strategies() {
		d, ok := s.Drafts[strategy]
		if !ok {
			continue
		}
		c := s.Critiques[strategy]
		if !found || c.Score > bestCritique.Score {
			bestDraft, bestCritique, found = d, c, true
		}
	}
	return bestDraft, bestCritique, found
}

// Options controls the loop policy.
type Options struct {
	// MaxIterations bounds draft-critique rounds. Zero or negative means 1.
	MaxIterations int
	// RequireAccept keeps looping (up to MaxIterations) until every strategy
	// is accepted. When false a single round is terminal regardless of scores.
	RequireAccept bool
	// Progress, when set, is called at the start of each round that has work
	// to do, with the phase name ("drafting" or "critiquing").
	Progress func(phase string)
}

func (o Options) progress(phase string) {
	if o.Progress != nil {
		o.Progress(phase)
	}
}

func (o Options) ceiling() int {
	if o.MaxIterations < 1 {
		return 1
	}
	return o.MaxIterations
}

// Graph wires the drafter and critic into the loop. Construct with New.
type Graph struct {
	drafter agent.Drafter
	critic  agent.Critic
	opts    Options
}

func New(drafter agent.Drafter, critic agent.Critic, opts Options) Graph {
	return Graph{drafter: drafter, critic: critic, opts: opts}
}

// Run executes draft and critique rounds starting from initial until every
// strategy is accepted or the iteration ceiling is reached. A failed call for
// one strategy is replaced by its labeled fallback and never cancels the
// others. Run only errors when ctx is done.
func (g Graph) Run(ctx context.Context, initial State) (State, error) {
	state := initial
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		state = g.draftRound(ctx, state)
		state = g.critiqueRound(ctx, state)
		state.Iteration++
		if !g.opts.RequireAccept || state.AllAccepted() || state.Iteration >= g.opts.ceiling() {
			return state, nil
		}
	}
}

type draftResult struct {
	strategy domain.Strategy
	draft    domain.StrategyDraft
}

// draftRound fans out one Drafter call per strategy still lacking an accepted
// draft and merges the results in.
func (g Graph) draftRound(ctx context.Context, state State) State {
	pending := state.pendingStrategies()
	if len(pending) == 0 {
		return state
	}
	g.opts.progress("drafting")
	research := renderResearch(state.Research)
	results := make(chan draftResult, len(pending))
	for _, strategy := range pending {
		go func(strategy domain.Strategy) {
			draft, err := g.drafter.Draft(ctx, strategy, state.ProjectName, state.ClientName, research)
			if err != nil {
				draft = agent.FallbackDraft(strategy, state.ProjectName)
			}
			results <- draftResult{strategy: strategy, draft: draft}
		}(strategy)
	}
	next := state.clone()
	for range pending {
		r := <-results
		next.Drafts[r.strategy] = r.draft
	}
	return next
}

type critiqueResult struct {
	strategy domain.Strategy
	critique domain.CritiqueResult
}

// critiqueRound fans out one Critic call per uncritiqued or rejected draft.
func (g Graph) critiqueRound(ctx context.Context, state State) State {
	var todo []domain.Strategy
	for _, strategy := range domain.Strategies() {
		if _, ok := state.Drafts[strategy]; !ok {
			continue
		}
		if c, ok := state.Critiques[strategy]; ok && c.Accepted() {
			continue
		}
		todo = append(todo, strategy)
	}
	if len(todo) == 0 {
		return state
	}
	g.opts.progress("critiquing")
	results := make(chan critiqueResult, len(todo))
	for _, strategy := range todo {
		go func(strategy domain.Strategy) {
			critique, err := g.critic.Critique(ctx, state.Drafts[strategy].ExecutiveSummary)
			if err != nil {
				critique = agent.FallbackCritique()
			}
			results <- critiqueResult{strategy: strategy, critique: critique}
		}(strategy)
	}
	next := state.clone()
	for range todo {
		r := <-results
		next.Critiques[r.strategy] = r.critique
	}
	return next
}

// pendingStrategies lists strategies that still need a draft this round:
// missing entirely, or drafted but rejected on a previous iteration.
func (s State) pendingStrategies() []domain.Strategy {
	var pending []domain.Strategy
	for _, strategy := range domain.Strategies() {
		if _, ok := s.Drafts[strategy]; !ok {
			pending = append(pending, strategy)
			continue
		}
		if c, ok := s.Critiques[strategy]; ok && !c.Accepted() {
			pending = append(pending, strategy)
		}
	}
	return pending
}

// renderResearch flattens the summary into prompt-ready text.
func renderResearch(r domain.ResearchSummary) string {
	var b strings.Builder
	section := func(title string, items []string) {
		b.WriteString(title)
		b.WriteString(":\n")
		for _, item := range items {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
	}
	section("Client news", r.ClientNews)
	section("Competitor wins", r.CompetitorWins)
	section("Pain points", r.PainPoints)
	section("Evidence", r.EvidenceBullets)
	return b.String()
}
