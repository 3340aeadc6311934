// Package audit appends structured mutation records to the audit sink.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

// Recorder writes audit records through the store. Recording is best-effort:
// the mutation it describes has already committed, so a failed append is
// logged rather than surfaced.
type Recorder struct {
	store store.Store
}

// NewRecorder returns a Recorder backed by the given store.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record appends one audit entry. before and after are marshaled to JSON;
// pass nil for creations with no prior state.
func (r *Recorder) Record(ctx context.Context, actor, action string, targetIDs []string, before, after any) {
	rec := &models.AuditRecord{
		Actor:     actor,
		Action:    action,
		TargetIDs: targetIDs,
		Before:    marshalSnapshot(before),
		After:     marshalSnapshot(after),
	}
	if err := r.store.AppendAudit(ctx, rec); err != nil {
		slog.Warn("failed to append audit record", "action", action, "error", err)
	}
}

func marshalSnapshot(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
