package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidforge/internal/agent"
	"bidforge/internal/domain"
	"bidforge/internal/llm/llmtest"
)

func draftJSON(strategy, summary string) string {
	return `{
		"strategyName": "` + strategy + `",
		"executiveSummary": "` + summary + `",
		"keyTheme": "theme",
		"strengths": ["s"],
		"weaknesses": ["w"]
	}`
}

func critiqueJSON(score string) string {
	return `{
		"score": ` + score + `,
		"status": "REJECT",
		"critique": ["finding"],
		"harshFeedback": ["verdict"],
		"complianceChecklist": [{"name": "Social Value", "passed": true}]
	}`
}

func newGraph(client *llmtest.Client, opts Options) Graph {
	drafter := agent.NewDrafter(client, agent.DefaultDrafterTemperature, 2048)
	critic := agent.NewCritic(client, agent.DefaultCriticTemperature, 1024)
	return New(drafter, critic, opts)
}

func initialState() State {
	return State{
		ProjectName: "Casework Platform",
		ClientName:  "Riverdale Council",
		Research:    agent.FallbackResearchSummary("Riverdale Council"),
	}
}

func TestRunSingleRoundProducesAllDrafts(t *testing.T) {
	client := llmtest.New().
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Innovative"`, draftJSON("Innovative", "innovative summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Respond("hostile bid evaluator", critiqueJSON("7.0"))

	got, err := newGraph(client, Options{}).Run(context.Background(), initialState())
	require.NoError(t, err)

	assert.Equal(t, 1, got.Iteration)
	require.Len(t, got.Drafts, 3)
	require.Len(t, got.Critiques, 3)
	for _, strategy := range domain.Strategies() {
		assert.Equal(t, strategy, got.Drafts[strategy].StrategyName)
		assert.Equal(t, domain.CritiqueReject, got.Critiques[strategy].Status)
	}
}

func TestRunOneStrategyFailureDoesNotAffectOthers(t *testing.T) {
	client := llmtest.New().
		Fail(`"Innovative"`, nil).
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Respond("hostile bid evaluator", critiqueJSON("6.0"))

	got, err := newGraph(client, Options{}).Run(context.Background(), initialState())
	require.NoError(t, err)

	require.Len(t, got.Drafts, 3)
	assert.Equal(t, "safe summary", got.Drafts[domain.StrategySafe].ExecutiveSummary)
	assert.Equal(t, "disruptive summary", got.Drafts[domain.StrategyDisruptive].ExecutiveSummary)
	assert.Contains(t, got.Drafts[domain.StrategyInnovative].ExecutiveSummary, "(Mock)")
}

func TestRunCriticOutageYieldsFallbackReject(t *testing.T) {
	client := llmtest.New().
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Innovative"`, draftJSON("Innovative", "innovative summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Fail("hostile bid evaluator", nil)

	got, err := newGraph(client, Options{}).Run(context.Background(), initialState())
	require.NoError(t, err)

	for _, strategy := range domain.Strategies() {
		c := got.Critiques[strategy]
		assert.Equal(t, domain.CritiqueReject, c.Status)
		assert.False(t, c.Accepted())
	}
}

func TestRunRequireAcceptLoopsUntilCeiling(t *testing.T) {
	client := llmtest.New().
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Innovative"`, draftJSON("Innovative", "innovative summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Respond("hostile bid evaluator", critiqueJSON("4.0"))

	got, err := newGraph(client, Options{MaxIterations: 3, RequireAccept: true}).
		Run(context.Background(), initialState())
	require.NoError(t, err)

	assert.Equal(t, 3, got.Iteration)

	var draftCalls int
	for _, call := range client.Calls() {
		if call.Temperature == agent.DefaultDrafterTemperature {
			draftCalls++
		}
	}
	assert.Equal(t, 9, draftCalls)
}

func TestRunRequireAcceptStopsWhenAllAccepted(t *testing.T) {
	client := llmtest.New().
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Innovative"`, draftJSON("Innovative", "innovative summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Respond("hostile bid evaluator", critiqueJSON("9.0"))

	got, err := newGraph(client, Options{MaxIterations: 5, RequireAccept: true}).
		Run(context.Background(), initialState())
	require.NoError(t, err)

	assert.Equal(t, 1, got.Iteration)
	assert.True(t, got.AllAccepted())
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newGraph(llmtest.New(), Options{}).Run(ctx, initialState())
	require.ErrorIs(t, err, context.Canceled)
}

func TestBestPicksHighestScore(t *testing.T) {
	s := initialState()
	s.Drafts = map[domain.Strategy]domain.StrategyDraft{
		domain.StrategySafe:       {StrategyName: domain.StrategySafe, ExecutiveSummary: "a"},
		domain.StrategyInnovative: {StrategyName: domain.StrategyInnovative, ExecutiveSummary: "b"},
	}
	s.Critiques = map[domain.Strategy]domain.CritiqueResult{
		domain.StrategySafe:       {Score: 6.0},
		domain.StrategyInnovative: {Score: 8.0},
	}

	draft, critique, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, domain.StrategyInnovative, draft.StrategyName)
	assert.Equal(t, 8.0, critique.Score)
}

func TestBestEmptyState(t *testing.T) {
	_, _, ok := State{}.Best()
	assert.False(t, ok)
}

func TestRunDoesNotMutateInitialState(t *testing.T) {
	client := llmtest.New().
		Respond(`"Safe"`, draftJSON("Safe", "safe summary")).
		Respond(`"Innovative"`, draftJSON("Innovative", "innovative summary")).
		Respond(`"Disruptive"`, draftJSON("Disruptive", "disruptive summary")).
		Respond("hostile bid evaluator", critiqueJSON("7.0"))

	initial := initialState()
	_, err := newGraph(client, Options{}).Run(context.Background(), initial)
	require.NoError(t, err)

	assert.Empty(t, initial.Drafts)
	assert.Empty(t, initial.Critiques)
	assert.Equal(t, 0, initial.Iteration)
}
