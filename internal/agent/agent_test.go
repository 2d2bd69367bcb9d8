package agent

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidforge/internal/domain"
	"bidforge/internal/llm/llmtest"
)

func TestResearcherParsesSummary(t *testing.T) {
	client := llmtest.New().Respond("bid intelligence researcher", `{
		"clientNews": ["council announced a new IT programme"],
		"competitorWins": ["incumbent renewed for two years"],
		"painPoints": ["legacy estate costs"],
		"evidenceBullets": ["20 percent savings in comparable councils"]
	}`)
	r := NewResearcher(client, DefaultResearcherTemperature, 1024)

	got, err := r.Research(context.Background(), "Casework Platform", "Riverdale Council", "Provide a casework system.")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ClientNews)
	assert.NotEmpty(t, got.EvidenceBullets)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].JSONOnly)
	assert.Equal(t, DefaultResearcherTemperature, calls[0].Temperature)
	assert.Contains(t, calls[0].Prompt, "Riverdale Council")
}

func TestResearcherEmptyListIsSchemaError(t *testing.T) {
	client := llmtest.New().Respond("", `{
		"clientNews": [],
		"competitorWins": ["x"],
		"painPoints": ["y"],
		"evidenceBullets": ["z"]
	}`)
	r := NewResearcher(client, 0, 1024)

	_, err := r.Research(context.Background(), "P", "C", "rfp")
	var serr SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "researcher", serr.Stage)
}

func TestFallbackResearchSummaryListsNonEmpty(t *testing.T) {
	s := FallbackResearchSummary("Riverdale Council")
	assert.NotEmpty(t, s.ClientNews)
	assert.NotEmpty(t, s.CompetitorWins)
	assert.NotEmpty(t, s.PainPoints)
	assert.NotEmpty(t, s.EvidenceBullets)
	assert.Contains(t, s.ClientNews[0], "(Mock)")
}

func TestDrafterRejectsMismatchedStrategy(t *testing.T) {
	client := llmtest.New().Respond("", `{
		"strategyName": "Innovative",
		"executiveSummary": "summary",
		"keyTheme": "theme",
		"strengths": ["s"],
		"weaknesses": ["w"]
	}`)
	d := NewDrafter(client, DefaultDrafterTemperature, 2048)

	_, err := d.Draft(context.Background(), domain.StrategySafe, "P", "C", "research")
	var serr SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), "does not match")
}

func TestDrafterUnknownStrategy(t *testing.T) {
	client := llmtest.New()
	d := NewDrafter(client, 0, 0)
	_, err := d.Draft(context.Background(), domain.Strategy("Reckless"), "P", "C", "research")
	require.Error(t, err)
	assert.Empty(t, client.Calls())
}

func TestDrafterPromptStatesAllPostures(t *testing.T) {
	client := llmtest.New().Respond("", `{
		"strategyName": "Disruptive",
		"executiveSummary": "A different delivery model.",
		"keyTheme": "change the frame",
		"strengths": ["bold"],
		"weaknesses": ["risky"]
	}`)
	d := NewDrafter(client, DefaultDrafterTemperature, 2048)

	got, err := d.Draft(context.Background(), domain.StrategyDisruptive, "P", "C", "research")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyDisruptive, got.StrategyName)

	prompt := client.Calls()[0].Prompt
	for _, posture := range []string{"Safe:", "Innovative:", "Disruptive:"} {
		assert.Contains(t, prompt, posture)
	}
}

func TestFallbackDraftNamesStrategy(t *testing.T) {
	d := FallbackDraft(domain.StrategyInnovative, "Casework Platform")
	assert.Equal(t, domain.StrategyInnovative, d.StrategyName)
	assert.Contains(t, d.ExecutiveSummary, "Innovative")
	assert.Contains(t, d.ExecutiveSummary, "(Mock)")
}

func TestCriticThresholdAgreement(t *testing.T) {
	cases := []struct {
		score  float64
		status string
		want   domain.CritiqueStatus
	}{
		{9.2, "ACCEPT", domain.CritiqueAccept},
		{8.5, "REJECT", domain.CritiqueAccept},
		{8.4, "ACCEPT", domain.CritiqueReject},
		{3.0, "REJECT", domain.CritiqueReject},
	}
	for _, tc := range cases {
		client := llmtest.New().Respond("", `{
			"score": `+strconv.FormatFloat(tc.score, 'f', -1, 64)+`,
			"status": "`+tc.status+`",
			"critique": ["finding"],
			"harshFeedback": ["verdict"],
			"complianceChecklist": [{"name": "Social Value", "passed": true}]
		}`)
		c := NewCritic(client, DefaultCriticTemperature, 1024)

		got, err := c.Critique(context.Background(), "draft text")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Status, "score %v", tc.score)
		assert.Equal(t, tc.want == domain.CritiqueAccept, got.Accepted())
	}
}

func TestCriticScoreOutOfRange(t *testing.T) {
	client := llmtest.New().Respond("", `{
		"score": 11,
		"status": "ACCEPT",
		"critique": ["x"],
		"harshFeedback": [],
		"complianceChecklist": []
	}`)
	c := NewCritic(client, 0, 1024)

	_, err := c.Critique(context.Background(), "text")
	var serr SchemaError
	require.ErrorAs(t, err, &serr)
}

func TestFallbackCritiqueIsReject(t *testing.T) {
	res := FallbackCritique()
	assert.Equal(t, domain.CritiqueReject, res.Status)
	assert.False(t, res.Accepted())
	assert.Less(t, res.Score, domain.AcceptThreshold)
	assert.NotEmpty(t, res.ComplianceChecklist)
}

func TestHumanizerRemovesDeniedPhrase(t *testing.T) {
	client := llmtest.New().Respond("editor", `{
		"refinedText": "We will examine the requirements in detail.",
		"changesMade": ["replaced the word delve with examine"]
	}`)
	h := NewHumanizer(client, DefaultHumanizerTemperature, 2048)

	got, err := h.Humanize(context.Background(), "We will delve into the requirements.")
	require.NoError(t, err)
	assert.NotContains(t, got.RefinedText, "delve")
	assert.NotEmpty(t, got.ChangesMade)

	prompt := client.Calls()[0].Prompt
	for _, phrase := range DeniedPhrases {
		assert.Contains(t, prompt, phrase)
	}
}

func TestFallbackHumanizedKeepsOriginal(t *testing.T) {
	original := "We will delve into the requirements."
	got := FallbackHumanized(original)
	assert.Equal(t, original, got.RefinedText)
	require.NotEmpty(t, got.ChangesMade)
	assert.Contains(t, got.ChangesMade[0], "(Mock)")
}

func TestWriterExpandsDraft(t *testing.T) {
	client := llmtest.New().Respond("full proposal document", `{
		"title": "Casework Platform Proposal",
		"body": "UNDERSTANDING OF REQUIREMENTS\nWe understand the need.",
		"sections": ["UNDERSTANDING OF REQUIREMENTS"]
	}`)
	w := NewWriter(client, DefaultWriterTemperature, 4096)

	draft := domain.StrategyDraft{
		StrategyName:     domain.StrategySafe,
		ExecutiveSummary: "A compliant, low-risk delivery.",
		KeyTheme:         "continuity",
	}
	got, err := w.Write(context.Background(), "Casework Platform", "Riverdale Council", draft)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Title)
	assert.NotEmpty(t, got.Sections)

	prompt := client.Calls()[0].Prompt
	assert.Contains(t, prompt, "No citation brackets")
	assert.Contains(t, prompt, "No em-dashes")
	assert.Contains(t, prompt, "A compliant, low-risk delivery.")
}

func TestFallbackDocumentCarriesScaffold(t *testing.T) {
	doc := FallbackDocument("Casework Platform", "Riverdale Council")
	assert.Contains(t, doc.Title, "Casework Platform")
	assert.Len(t, doc.Sections, 6)
	for _, s := range doc.Sections {
		assert.Contains(t, doc.Body, s)
	}
}

func TestInvokeStripsCodeFences(t *testing.T) {
	client := llmtest.New().Respond("", "```json\n{\"refinedText\": \"ok\", \"changesMade\": [\"none\"]}\n```")
	h := NewHumanizer(client, 0, 0)

	got, err := h.Humanize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.RefinedText)
}

func TestInvokeTransportErrorIsNotSchemaError(t *testing.T) {
	client := llmtest.New().Fail("", nil)
	h := NewHumanizer(client, 0, 0)

	_, err := h.Humanize(context.Background(), "text")
	require.Error(t, err)
	require.ErrorIs(t, err, llmtest.ErrUnavailable)
	var serr SchemaError
	assert.False(t, errors.As(err, &serr))
}
