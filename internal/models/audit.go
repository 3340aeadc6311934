package models

import "time"

// AuditRecord captures one mutation for the audit trail: who did what to
// which records, with before/after field snapshots.
type AuditRecord struct {
	ID        string
	Actor     string
	Action    string
	TargetIDs []string
	Before    string // JSON snapshot of affected fields, "" for creations
	After     string // JSON snapshot of affected fields
	CreatedAt time.Time
}

// Audit action names recorded by this subsystem.
const (
	AuditActionIssueCreate      = "issue.create"
	AuditActionIssueUpdate      = "issue.update"
	AuditActionIssueDelete      = "issue.delete"
	AuditActionIssueNote        = "issue.note"
	AuditActionRepairDuplicates = "maintenance.repair_duplicates"
	AuditActionBackfillIDs      = "maintenance.backfill_ids"
	AuditActionBulkImport       = "issue.bulk_import"
)
