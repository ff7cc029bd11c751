package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/staynest/authengine"
)

// AuditSink writes audit events into the append-only audit_events table.
// Rows are inserted once and never updated or deleted by the engine.
type AuditSink struct {
	db     *sql.DB
	onFail func(error)
}

// NewAuditSink creates a sink. onFail, if non-nil, observes insert
// failures; the sink itself never propagates them because audit emission
// runs behind the dispatcher, after the request already finished.
func NewAuditSink(db *sql.DB, onFail func(error)) *AuditSink {
	return &AuditSink{db: db, onFail: onFail}
}

// Emit implements [authengine.AuditSink].
func (s *AuditSink) Emit(ctx context.Context, event authengine.AuditEvent) {
	var metadata any
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err == nil {
			metadata = string(encoded)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, occurred_at, action, principal_id, session_id, ip, device, success, error, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"aud-"+uuid.NewString(), event.Timestamp.Unix(), event.Action,
		nullableString(event.PrincipalID), nullableString(event.SessionID),
		nullableString(event.IP), nullableString(event.Device),
		boolToInt(event.Success), nullableString(event.Error), metadata,
	)
	if err != nil && s.onFail != nil {
		s.onFail(err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
