package domain

// Strategy is one of the three fixed bid risk postures a draft is generated under.
type Strategy string

const (
	StrategySafe       Strategy = "Safe"
	StrategyInnovative Strategy = "Innovative"
	StrategyDisruptive Strategy = "Disruptive"
)

// Strategies lists every posture in the order drafts are presented.
func Strategies() []Strategy {
	return []Strategy{StrategySafe, StrategyInnovative, StrategyDisruptive}
}

// ValidStrategy reports whether s is one of the fixed postures.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategySafe, StrategyInnovative, StrategyDisruptive:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a ProposalJob.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobResearching JobStatus = "researching"
	JobDrafting    JobStatus = "drafting"
	JobCritiquing  JobStatus = "critiquing"
	JobHumanizing  JobStatus = "humanizing"
	JobComplete    JobStatus = "complete"
	JobFailed      JobStatus = "failed"
)

// statusRank fixes the ordering pending < researching < drafting < critiquing
// < humanizing < complete. failed sits outside the linear progression and is
// reachable from any non-terminal state.
var statusRank = map[JobStatus]int{
	JobPending:     0,
	JobResearching: 1,
	JobDrafting:    2,
	JobCritiquing:  3,
	JobHumanizing:  4,
	JobComplete:    5,
}

// Rank returns the position of s in the status ordering, or -1 for failed and
// unknown statuses.
func (s JobStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// ProposalJob is the unit of work tracked across the asynchronous boundary.
// The record is written only by the worker executing the pipeline for its id;
// pollers read it and never mutate.
type ProposalJob struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status" enum:"pending,researching,drafting,critiquing,humanizing,complete,failed"`
	Result    *string   `json:"result,omitempty"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

// GenerationInput is what the caller supplies to start a pipeline run.
type GenerationInput struct {
	ProjectName string  `json:"project_name"`
	ClientName  string  `json:"client_name"`
	RFPText     string  `json:"rfp_text,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
}

// ResearchSummary holds intelligence gathered about the buyer and sector.
// Each list is independently fallback-able.
type ResearchSummary struct {
	ClientNews      []string `json:"clientNews"`
	CompetitorWins  []string `json:"competitorWins"`
	PainPoints      []string `json:"painPoints"`
	EvidenceBullets []string `json:"evidenceBullets"`
}

// StrategyDraft is one candidate bid position. Exactly one exists per strategy
// per generation run.
type StrategyDraft struct {
	StrategyName     Strategy `json:"strategyName" enum:"Safe,Innovative,Disruptive"`
	ExecutiveSummary string   `json:"executiveSummary"`
	KeyTheme         string   `json:"keyTheme"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
}

// CritiqueStatus is the derived accept/reject label on a critique.
type CritiqueStatus string

const (
	CritiqueAccept CritiqueStatus = "ACCEPT"
	CritiqueReject CritiqueStatus = "REJECT"
)

// AcceptThreshold is the fixed score a critique must reach to be bid-ready.
const AcceptThreshold = 8.5

// ComplianceCheck is one named boolean check on a proposal.
type ComplianceCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// CritiqueResult is an evaluation of a draft or full proposal. Status always
// agrees with the threshold rule: ACCEPT iff Score >= AcceptThreshold.
type CritiqueResult struct {
	Score               float64           `json:"score" minimum:"0" maximum:"10"`
	Status              CritiqueStatus    `json:"status" enum:"ACCEPT,REJECT"`
	Critique            []string          `json:"critique"`
	HarshFeedback       []string          `json:"harshFeedback"`
	ComplianceChecklist []ComplianceCheck `json:"complianceChecklist"`
}

// Normalize forces Status to agree with the threshold rule.
func (c *CritiqueResult) Normalize() {
	if c.Score >= AcceptThreshold {
		c.Status = CritiqueAccept
	} else {
		c.Status = CritiqueReject
	}
}

// Accepted reports whether the critique cleared the threshold.
func (c CritiqueResult) Accepted() bool {
	return c.Score >= AcceptThreshold
}

// HumanizedText is the humanizer stage output: the rewritten text plus a
// changelog of edits so alterations stay traceable.
type HumanizedText struct {
	RefinedText string   `json:"refinedText"`
	ChangesMade []string `json:"changesMade"`
}

// WrittenDocument is the writer stage output before persistence.
type WrittenDocument struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Sections []string `json:"sections"`
}

// ProposalDocument is the full written proposal stored per completed job.
type ProposalDocument struct {
	JobID        string   `json:"job_id"`
	ProjectName  string   `json:"project_name"`
	ClientName   string   `json:"client_name"`
	StrategyName Strategy `json:"strategy_name"`
	Body         string   `json:"body"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// CreditBalance is a per-owner credit account; one credit is consumed per
// completed owned job.
type CreditBalance struct {
	OwnerID   string `json:"owner_id"`
	Credits   int    `json:"credits"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Event is one audit-log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
