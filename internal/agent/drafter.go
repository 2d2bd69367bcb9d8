package agent

import (
	"context"
	"fmt"

	"bidforge/internal/domain"
	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// DefaultDrafterTemperature leaves room for distinct strategic voices.
const DefaultDrafterTemperature = 0.7

var drafterTemplate = prompt.New("drafter", `You are a senior bid writer drafting one strategic position for a UK public sector tender.

Project: {{project}}
Buyer: {{client}}
Research summary:
{{research}}

Write the draft under the "{{strategy}}" posture. The three postures are mutually exclusive; follow yours exactly:
- Safe: lowest-risk compliant bid. Emphasize track record, continuity, proven delivery. No novel claims.
- Innovative: measured innovation on a compliant core. One or two differentiating capabilities with evidence.
- Disruptive: challenge the buyer's framing. Propose a materially different delivery model with a clear payoff and honest risk statement.

Return a single JSON object with keys:
"strategyName": exactly "{{strategy}}",
"executiveSummary": 150-250 words of persuasive summary,
"keyTheme": one sentence,
"strengths": array of strings,
"weaknesses": array of strings (be honest).`)

// Drafter produces one StrategyDraft per call, parameterized by posture.
type Drafter struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewDrafter(client llm.Client, temperature float64, maxTokens int) Drafter {
	return Drafter{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Draft runs the live call for one strategy. A draft that comes back under a
// different strategy name is a schema failure.
func (d Drafter) Draft(ctx context.Context, strategy domain.Strategy, projectName, clientName, research string) (domain.StrategyDraft, error) {
	if !domain.ValidStrategy(strategy) {
		return domain.StrategyDraft{}, fmt.Errorf("drafter: unknown strategy %q", strategy)
	}
	return invoke(ctx, d.client, callSpec{
		stage:       "drafter",
		tmpl:        drafterTemplate,
		temperature: d.temperature,
		maxTokens:   d.maxTokens,
	}, map[string]string{
		"project":  projectName,
		"client":   clientName,
		"research": research,
		"strategy": string(strategy),
	}, func(s *domain.StrategyDraft) error {
		if s.StrategyName != strategy {
			return fmt.Errorf("strategyName %q does not match requested %q", s.StrategyName, strategy)
		}
		if s.ExecutiveSummary == "" {
			return fmt.Errorf("executiveSummary must not be empty")
		}
		return nil
	})
}

// FallbackDraft names the failed strategy so the failure stays visible to the
// user instead of silently narrowing the field.
func FallbackDraft(strategy domain.Strategy, projectName string) domain.StrategyDraft {
	return domain.StrategyDraft{
		StrategyName: strategy,
		ExecutiveSummary: fmt.Sprintf(
			"(Mock) The %s draft for %s could not be generated. This placeholder keeps the strategy visible; regenerate to replace it.",
			strategy, projectName),
		KeyTheme:   fmt.Sprintf("(Mock) %s positioning unavailable", strategy),
		Strengths:  []string{"(Mock) Not assessed"},
		Weaknesses: []string{"(Mock) Draft generation failed"},
	}
}
