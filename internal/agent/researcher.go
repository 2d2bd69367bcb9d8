package agent

import (
	"context"

	"bidforge/internal/domain"
	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// DefaultResearcherTemperature favors factual consistency over creativity.
const DefaultResearcherTemperature = 0.0

var researcherTemplate = prompt.New("researcher", `You are a bid intelligence researcher for UK public sector tenders.
Gather intelligence on the buyer and sector for the tender below.

Project: {{project}}
Buyer: {{client}}
RFP extract:
{{rfp}}

Return a single JSON object with exactly these keys, each a non-empty array of strings:
"clientNews": recent news items about the buyer,
"competitorWins": recent contract awards to likely competitors,
"painPoints": operational or political pain points the buyer faces,
"evidenceBullets": concrete evidence points a bidder could cite.
Base every item on the RFP extract where possible; mark inferences as such.`)

// Researcher produces a ResearchSummary for a tender.
type Researcher struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewResearcher(client llm.Client, temperature float64, maxTokens int) Researcher {
	return Researcher{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Research runs the live call. Failures escalate to the caller, which decides
// whether to substitute FallbackResearchSummary.
func (r Researcher) Research(ctx context.Context, projectName, clientName, rfpText string) (domain.ResearchSummary, error) {
	return invoke(ctx, r.client, callSpec{
		stage:       "researcher",
		tmpl:        researcherTemplate,
		temperature: r.temperature,
		maxTokens:   r.maxTokens,
	}, map[string]string{
		"project": projectName,
		"client":  clientName,
		"rfp":     rfpText,
	}, func(s *domain.ResearchSummary) error {
		if err := nonEmpty("clientNews", s.ClientNews); err != nil {
			return err
		}
		if err := nonEmpty("competitorWins", s.CompetitorWins); err != nil {
			return err
		}
		if err := nonEmpty("painPoints", s.PainPoints); err != nil {
			return err
		}
		return nonEmpty("evidenceBullets", s.EvidenceBullets)
	})
}

// FallbackResearchSummary is the clearly-labeled substitute used when the
// live research call fails. Every list is non-empty so downstream stages can
// proceed.
func FallbackResearchSummary(clientName string) domain.ResearchSummary {
	return domain.ResearchSummary{
		ClientNews: []string{
			"(Mock) " + clientName + " announced a digital transformation programme this year.",
			"(Mock) " + clientName + " is under budget pressure following the latest spending review.",
		},
		CompetitorWins: []string{
			"(Mock) A large incumbent supplier renewed a managed services contract with " + clientName + ".",
		},
		PainPoints: []string{
			"(Mock) Legacy systems with high running costs.",
			"(Mock) Difficulty recruiting specialist staff.",
		},
		EvidenceBullets: []string{
			"(Mock) Sector benchmarks show 20-30 percent cost reduction from comparable programmes.",
		},
	}
}
