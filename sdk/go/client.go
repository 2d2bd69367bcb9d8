package bidforgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal bidforge HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 120 * time.Second,
	}
}

// Job mirrors the API job model.
type Job struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Result    *string `json:"result,omitempty"`
	OwnerID   *string `json:"owner_id,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Proposal is a finished proposal document.
type Proposal struct {
	JobID        string `json:"job_id"`
	ProjectName  string `json:"project_name"`
	ClientName   string `json:"client_name"`
	StrategyName string `json:"strategy_name"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at"`
}

// ResearchSummary is the research stage output.
type ResearchSummary struct {
	ClientNews      []string `json:"clientNews"`
	CompetitorWins  []string `json:"competitorWins"`
	PainPoints      []string `json:"painPoints"`
	EvidenceBullets []string `json:"evidenceBullets"`
}

// StrategyDraft is one strategic position.
type StrategyDraft struct {
	StrategyName     string   `json:"strategyName"`
	ExecutiveSummary string   `json:"executiveSummary"`
	KeyTheme         string   `json:"keyTheme"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
}

// ComplianceCheck is one named boolean check.
type ComplianceCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// CritiqueResult is an evaluation of proposal text.
type CritiqueResult struct {
	Score               float64           `json:"score"`
	Status              string            `json:"status"`
	Critique            []string          `json:"critique"`
	HarshFeedback       []string          `json:"harshFeedback"`
	ComplianceChecklist []ComplianceCheck `json:"complianceChecklist"`
}

// HumanizedText is the humanizer stage output.
type HumanizedText struct {
	RefinedText string   `json:"refinedText"`
	ChangesMade []string `json:"changesMade"`
}

// Document is the writer stage output.
type Document struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Sections []string `json:"sections"`
}

// Event is one audit-log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// EventPage wraps event listings with a cursor.
type EventPage struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Dispatch starts an asynchronous generation job and returns the job id.
func (c *Client) Dispatch(ctx context.Context, projectName, clientName, rfpText string, ownerID *string) (string, error) {
	body := map[string]any{
		"project_name": projectName,
		"client_name":  clientName,
		"rfp_text":     rfpText,
	}
	if ownerID != nil {
		body["owner_id"] = *ownerID
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	err := c.do(ctx, http.MethodPost, "v0/generate", body, &resp)
	return resp.JobID, err
}

// GetJob returns the job record.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "v0/jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// GetProposal returns the finished proposal for a completed job.
func (c *Client) GetProposal(ctx context.Context, jobID string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodGet, "v0/proposals/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// Research runs the research stage.
func (c *Client) Research(ctx context.Context, projectName, clientName, rfpText string) (ResearchSummary, error) {
	var resp ResearchSummary
	err := c.do(ctx, http.MethodPost, "v0/stages/research", map[string]any{
		"project_name": projectName,
		"client_name":  clientName,
		"rfp_text":     rfpText,
	}, &resp)
	return resp, err
}

// Draft runs the drafter for one strategy.
func (c *Client) Draft(ctx context.Context, strategyName, projectName, clientName, research string) (StrategyDraft, error) {
	var resp StrategyDraft
	err := c.do(ctx, http.MethodPost, "v0/stages/draft", map[string]any{
		"strategy_name": strategyName,
		"project_name":  projectName,
		"client_name":   clientName,
		"research":      research,
	}, &resp)
	return resp, err
}

// Critique scores text against the acceptance threshold.
func (c *Client) Critique(ctx context.Context, text string) (CritiqueResult, error) {
	var resp CritiqueResult
	err := c.do(ctx, http.MethodPost, "v0/stages/critique", map[string]any{"text": text}, &resp)
	return resp, err
}

// Humanize rewrites text for tone.
func (c *Client) Humanize(ctx context.Context, text string) (HumanizedText, error) {
	var resp HumanizedText
	err := c.do(ctx, http.MethodPost, "v0/stages/humanize", map[string]any{"text": text}, &resp)
	return resp, err
}

// Write expands a draft into the full document.
func (c *Client) Write(ctx context.Context, projectName, clientName string, draft StrategyDraft) (Document, error) {
	var resp Document
	err := c.do(ctx, http.MethodPost, "v0/stages/write", map[string]any{
		"project_name": projectName,
		"client_name":  clientName,
		"draft":        draft,
	}, &resp)
	return resp, err
}

// Events returns recent audit events, newest first.
func (c *Client) Events(ctx context.Context, entityID string, limit int, cursor string) (EventPage, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if entityID != "" {
		params.Set("entity_id", entityID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp EventPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
