package behavior

import (
	"context"
	"log/slog"
	"time"

	"github.com/electio/votegate/internal/idgen"
)

// Recorder appends log entries best-effort: a storage failure is logged and
// swallowed so behavioral logging never fails a user-facing request.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a best-effort recorder over the given store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends an entry for an authenticated action.
func (r *Recorder) Record(ctx context.Context, accountID, action string, details map[string]interface{}) {
	e := &Entry{
		ID:        idgen.WithPrefix("log_"),
		AccountID: accountID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := r.store.Append(ctx, e); err != nil {
		r.logger.Warn("behavioral log append failed", "action", action, "error", err)
	}
}
