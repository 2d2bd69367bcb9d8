package agent

import (
	"context"
	"fmt"

	"bidforge/internal/domain"
	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// DefaultWriterTemperature balances fluency with fidelity to the draft.
const DefaultWriterTemperature = 0.6

// The formatting rules must stay explicit in the prompt; models reintroduce
// brackets and bold the moment they are left implicit.
var writerTemplate = prompt.New("writer", `You are a senior bid writer producing the full proposal document for a UK public sector tender.

Project: {{project}}
Buyer: {{client}}
Winning executive summary to expand:
{{summary}}
Key theme: {{theme}}

Expand the summary into a complete proposal with these sections, in order:
UNDERSTANDING OF REQUIREMENTS, PROPOSED SOLUTION, DELIVERY APPROACH, SOCIAL VALUE, RISK MANAGEMENT, PRICING APPROACH.

Formatting rules, all mandatory:
- Section headers in capital letters on their own line.
- No citation brackets of any kind, such as [1] or [source].
- No markdown bold or italics in body text.
- No em-dashes; use commas or full stops instead.
- British English spelling throughout.

Return a single JSON object with keys:
"title": the proposal title,
"body": the full document as plain text with the sections above,
"sections": array of the section header strings in order.`)

// Writer expands the winning draft into the final document.
type Writer struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewWriter(client llm.Client, temperature float64, maxTokens int) Writer {
	return Writer{client: client, temperature: temperature, maxTokens: maxTokens}
}

// Write runs the live call.
func (w Writer) Write(ctx context.Context, projectName, clientName string, draft domain.StrategyDraft) (domain.WrittenDocument, error) {
	return invoke(ctx, w.client, callSpec{
		stage:       "writer",
		tmpl:        writerTemplate,
		temperature: w.temperature,
		maxTokens:   w.maxTokens,
	}, map[string]string{
		"project": projectName,
		"client":  clientName,
		"summary": draft.ExecutiveSummary,
		"theme":   draft.KeyTheme,
	}, func(d *domain.WrittenDocument) error {
		if d.Title == "" {
			return fmt.Errorf("title must not be empty")
		}
		if d.Body == "" {
			return fmt.Errorf("body must not be empty")
		}
		return nonEmpty("sections", d.Sections)
	})
}

// FallbackDocument is the skeleton emitted when document expansion fails. It
// carries the section scaffold so the user can finish by hand.
func FallbackDocument(projectName, clientName string) domain.WrittenDocument {
	sections := []string{
		"UNDERSTANDING OF REQUIREMENTS",
		"PROPOSED SOLUTION",
		"DELIVERY APPROACH",
		"SOCIAL VALUE",
		"RISK MANAGEMENT",
		"PRICING APPROACH",
	}
	body := fmt.Sprintf("(Mock) Proposal for %s, prepared for %s. Document generation failed; the section scaffold below is a starting point for manual completion.\n", projectName, clientName)
	for _, s := range sections {
		body += "\n" + s + "\n(Mock) Section content unavailable.\n"
	}
	return domain.WrittenDocument{
		Title:    fmt.Sprintf("(Mock) Proposal: %s", projectName),
		Body:     body,
		Sections: sections,
	}
}
