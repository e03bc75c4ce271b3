package observer

import (
	"log/slog"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Log writes one structured record per lifecycle event.
type Log struct {
	logger *slog.Logger
}

// NewLog logs through logger, or slog.Default() when nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) OnEnqueued(item ir.WorkItem) {
	l.logger.Debug("item enqueued", itemAttrs(item)...)
}

func (l *Log) OnStarted(item ir.WorkItem, worker string) {
	l.logger.Debug("item started", append(itemAttrs(item), "worker", worker)...)
}

func (l *Log) OnCompleted(item ir.WorkItem, elapsed time.Duration) {
	l.logger.Info("item completed", append(itemAttrs(item), "elapsed_ms", elapsed.Milliseconds())...)
}

func (l *Log) OnRetrying(item ir.WorkItem, attempt int) {
	l.logger.Warn("item retrying", append(itemAttrs(item), "attempt", attempt)...)
}

func (l *Log) OnFailedPermanently(item ir.WorkItem) {
	l.logger.Error("item failed permanently", itemAttrs(item)...)
}

func (l *Log) OnReleased(item ir.WorkItem, from ir.Status) {
	l.logger.Warn("item released", append(itemAttrs(item), "from", string(from))...)
}

func itemAttrs(item ir.WorkItem) []any {
	return []any{
		"item_id", item.ID(),
		"amount", ir.FormatAmount(item.Amount()),
		"priority", item.Priority(),
	}
}
