// Package audit records fire-and-forget action logs. Audit writes are
// best-effort: a failed write must never make a successfully executed trade
// appear failed, so every error here is logged and swallowed.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/traderisk/trade-engine/internal/model"
	"github.com/traderisk/trade-engine/internal/store"
)

// Audit action names.
const (
	ActionTradeExecuted  = "TRADE_EXECUTED"
	ActionRiskCalculated = "RISK_CALCULATED"
)

// Recorder persists audit records outside the caller's transaction.
type Recorder struct {
	st store.Store
}

// NewRecorder creates a recorder writing through the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{st: st}
}

// Record appends an audit entry for a user action. Never returns an error.
func (r *Recorder) Record(ctx context.Context, action, userID string) {
	if _, err := r.st.GetUser(ctx, userID); err != nil {
		slog.Warn("audit skipped: user not found", "action", action, "user", userID)
		return
	}

	entry := &model.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	if err := r.st.InsertAuditLog(ctx, entry); err != nil {
		slog.Error("audit write failed", "action", action, "user", userID, "err", err)
	}
}
