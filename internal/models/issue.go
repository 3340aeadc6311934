package models

import "time"

// Severity ranks how bad an issue is, S1 (critical) through S4 (low).
type Severity string

const (
	SeverityS1 Severity = "S1"
	SeverityS2 Severity = "S2"
	SeverityS3 Severity = "S3"
	SeverityS4 Severity = "S4"
)

// DefaultSeverity is applied when a record carries no severity at all.
const DefaultSeverity = SeverityS3

// Weight returns the sort weight for a severity; lower sorts first.
// Unknown severities sink below S4.
func (s Severity) Weight() int {
	switch s {
	case SeverityS1:
		return 1
	case SeverityS2:
		return 2
	case SeverityS3:
		return 3
	case SeverityS4:
		return 4
	default:
		return 5
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s == SeverityS1 || s == SeverityS2 || s == SeverityS3 || s == SeverityS4
}

// IssueStatus is a free-form workflow state. Only the terminal set is closed;
// anything outside it counts as open.
type IssueStatus string

const (
	IssueStatusNew        IssueStatus = "new"
	IssueStatusReviewed   IssueStatus = "reviewed"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusWorking    IssueStatus = "working"
	IssueStatusClosed     IssueStatus = "closed"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusReleased   IssueStatus = "released"
	IssueStatusArchived   IssueStatus = "archived"
	IssueStatusDone       IssueStatus = "done"
)

// terminalStatuses is the fixed set of statuses that end an issue's life.
var terminalStatuses = map[IssueStatus]bool{
	IssueStatusClosed:   true,
	IssueStatusResolved: true,
	IssueStatusReleased: true,
	IssueStatusArchived: true,
	IssueStatusDone:     true,
}

// IsTerminal reports whether the status ends an issue's life.
func (s IssueStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// IssueType is the category key used to judge trust/correctness impact.
type IssueType string

const (
	IssueTypeAuthAccess       IssueType = "auth_account_access"
	IssueTypeUXNavigation     IssueType = "ux_navigation"
	IssueTypeAssessmentScore  IssueType = "assessment_scoring"
	IssueTypeTutorOutput      IssueType = "ai_tutor_output"
	IssueTypeBilling          IssueType = "billing_subscription"
	IssueTypeContent          IssueType = "content_typo"
	IssueTypeCosmetic         IssueType = "cosmetic_visual"
	IssueTypePerformance      IssueType = "performance"
	IssueTypeUnknown          IssueType = "unknown"
)

// trustImpactingTypes are the categories that damage tester trust or
// correctness when broken: auth, navigation, scoring, tutoring output, billing.
var trustImpactingTypes = map[IssueType]bool{
	IssueTypeAuthAccess:      true,
	IssueTypeUXNavigation:    true,
	IssueTypeAssessmentScore: true,
	IssueTypeTutorOutput:     true,
	IssueTypeBilling:         true,
}

// TrustImpacting reports whether the category belongs to the fixed
// trust/correctness-impacting set.
func (t IssueType) TrustImpacting() bool {
	return trustImpactingTypes[t]
}

// Classification is an optional explicit triage override that short-circuits
// heuristic classification.
type Classification string

const (
	ClassificationBlocking   Classification = "blocking"
	ClassificationMisleading Classification = "misleading"
	ClassificationTrust      Classification = "trust"
	ClassificationCosmetic   Classification = "cosmetic"
)

// Issue is the central entity: a user-submitted problem report.
type Issue struct {
	ID             string // storage-assigned ULID, immutable primary key
	DisplayID      string // human-facing "<PREFIX>-<N>", write-once
	App            string // product namespace, drives the display-ID prefix
	Title          string
	Description    string
	Severity       Severity
	Status         IssueStatus
	Type           IssueType
	Classification Classification
	UserID         string // reporter/assignee provenance
	Deleted        bool   // soft delete; excluded from triage and live uniqueness
	LegacyIssueID  string // pre-migration identifier field, read-only fallback
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Notes          []*Note
}

// Open reports whether the issue belongs in the triage input set.
func (i *Issue) Open() bool {
	return !i.Deleted && !i.Status.IsTerminal()
}

// Note is a single append-only admin annotation on an issue.
type Note struct {
	ID        string
	IssueID   string
	Author    string
	Body      string
	CreatedAt time.Time
}
