package agent

import (
	"context"
	"fmt"

	"bidforge/internal/domain"
	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// DefaultCriticTemperature keeps scoring consistent across drafts.
const DefaultCriticTemperature = 0.2

// The weakness-hunting instruction counters the model's tendency to score
// generously; keep it when editing the prompt.
var criticTemplate = prompt.New("critic", `You are a hostile bid evaluator for a UK public sector buyer.
Your job is to find reasons to REJECT. Actively hunt for weaknesses, unsupported claims, compliance gaps and vague commitments. Do not be polite.

Proposal text to evaluate:
{{text}}

Score strictly from 0 to 10. A score of 8.5 or above means bid-ready; most drafts are not.
Return a single JSON object with keys:
"score": number 0-10,
"status": "ACCEPT" if score >= 8.5 else "REJECT",
"critique": array of specific criticisms,
"harshFeedback": array of blunt one-line verdicts,
"complianceChecklist": array of {"name": string, "passed": boolean} covering at least Social Value, Carbon Reduction Plan, Cyber Essentials.`)

// Critic evaluates a draft or full proposal against the fixed threshold.
type Critic struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewCritic(client llm.Client, temperature float64, maxTokens int) Critic {
	return Critic{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Critique runs the live call. The returned result always satisfies the
// threshold rule: the status is recomputed from the score, whatever the model
// said.
func (c Critic) Critique(ctx context.Context, text string) (domain.CritiqueResult, error) {
	res, err := invoke(ctx, c.client, callSpec{
		stage:       "critic",
		tmpl:        criticTemplate,
		temperature: c.temperature,
		maxTokens:   c.maxTokens,
	}, map[string]string{
		"text": text,
	}, func(r *domain.CritiqueResult) error {
		if r.Score < 0 || r.Score > 10 {
			return fmt.Errorf("score %v out of range [0,10]", r.Score)
		}
		return nonEmpty("critique", r.Critique)
	})
	if err != nil {
		return domain.CritiqueResult{}, err
	}
	res.Normalize()
	return res, nil
}

// FallbackCritique is the substitute on a failed critic call. It is a REJECT
// and satisfies the threshold rule like any other result.
func FallbackCritique() domain.CritiqueResult {
	res := domain.CritiqueResult{
		Score: 5.0,
		Critique: []string{
			"(Mock) Automated evaluation was unavailable; the draft has not been scored.",
		},
		HarshFeedback: []string{
			"(Mock) Unscored work is not bid-ready.",
		},
		ComplianceChecklist: []domain.ComplianceCheck{
			{Name: "Social Value", Passed: false},
			{Name: "Carbon Reduction Plan", Passed: false},
			{Name: "Cyber Essentials", Passed: false},
		},
	}
	res.Normalize()
	return res
}
