package agent

import (
	"context"
	"fmt"
	"strings"

	"bidforge/internal/domain"
	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// DefaultHumanizerTemperature allows light rephrasing without drift.
const DefaultHumanizerTemperature = 0.4

// DeniedPhrases are removed wholesale by the humanizer; their presence reads
// as machine-written to evaluators.
var DeniedPhrases = []string{
	"delve",
	"furthermore",
	"leverage",
	"in today's fast-paced world",
	"tapestry",
	"unlock",
	"game-changer",
}

var humanizerTemplate = prompt.New("humanizer", `You are an editor preparing a bid document for a UK public sector submission.

Rewrite the text below so it reads as if written by an experienced UK bid professional:
- Use British English spelling throughout (organisation, programme, optimise).
- Plain, confident tone; no marketing superlatives.
- Remove every occurrence of these phrases, rephrasing as needed: {{denylist}}.
- Preserve all factual claims, figures and commitments exactly.

Text:
{{text}}

Return a single JSON object with keys:
"refinedText": the full rewritten text,
"changesMade": array of strings, one entry per edit describing what changed and why.`)

// Humanizer rewrites for regional tone and strips flagged phrases, returning
// a changelog so every alteration stays traceable.
type Humanizer struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewHumanizer(client llm.Client, temperature float64, maxTokens int) Humanizer {
	return Humanizer{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Humanize runs the live call.
func (h Humanizer) Humanize(ctx context.Context, text string) (domain.HumanizedText, error) {
	return invoke(ctx, h.client, callSpec{
		stage:       "humanizer",
		tmpl:        humanizerTemplate,
		temperature: h.temperature,
		maxTokens:   h.maxTokens,
	}, map[string]string{
		"denylist": strings.Join(DeniedPhrases, "; "),
		"text":     text,
	}, func(r *domain.HumanizedText) error {
		if r.RefinedText == "" {
			return fmt.Errorf("refinedText must not be empty")
		}
		return nonEmpty("changesMade", r.ChangesMade)
	})
}

// FallbackHumanized returns the original text untouched with a changelog
// entry recording that the polish step failed.
func FallbackHumanized(original string) domain.HumanizedText {
	return domain.HumanizedText{
		RefinedText: original,
		ChangesMade: []string{"(Mock) Humanizer unavailable; text returned unchanged."},
	}
}
