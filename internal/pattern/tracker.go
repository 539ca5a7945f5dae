package pattern

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

// DefaultNCap is the occurrence count at which the frequency boost saturates.
const DefaultNCap = 20

// Tracker records failure signatures and hands the calibrator a history
// boost. Upserts from concurrent analyses are serialized here so that every
// test in a batch observes the same occurrence count for a given pattern:
// the count after the first increment of the run. Without that pinning the
// boost would depend on worker scheduling.
type Tracker struct {
	store  Store
	logger *zap.Logger
	nCap   int

	mu   sync.Mutex
	seen map[string]int64
}

// NewTracker creates a tracker backed by store. nCap bounds the occurrence
// count used for boosting; values <= 0 fall back to DefaultNCap.
func NewTracker(store Store, nCap int, logger *zap.Logger) *Tracker {
	if nCap <= 0 {
		nCap = DefaultNCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		nCap:   nCap,
		seen:   make(map[string]int64),
	}
}

// Record persists one occurrence per signal and returns the frequency boost
// for the primary signal (highest confidence, earliest extractor on ties).
// Storage failures are logged and yield a zero boost; they never fail the
// analysis.
func (t *Tracker) Record(ctx context.Context, signals []*model.FailureSignal, seenAt time.Time) float64 {
	if t == nil || t.store == nil || len(signals) == 0 {
		return 0
	}

	primary := model.PrimarySignal(signals)

	var primaryCount int64
	for _, sig := range signals {
		count, err := t.record(ctx, sig, seenAt)
		if err != nil {
			t.logger.Warn("pattern upsert failed, continuing without history boost",
				zap.String("signal_type", string(sig.SignalType)),
				zap.Error(err))
			if sig == primary {
				return 0
			}
			continue
		}
		if sig == primary {
			primaryCount = count
		}
	}

	return Boost(primaryCount, t.nCap)
}

// record upserts a single signal's pattern and returns the pinned count.
func (t *Tracker) record(ctx context.Context, sig *model.FailureSignal, seenAt time.Time) (int64, error) {
	normalized := Normalize(sig.Message)
	hash := Hash(sig.SignalType, normalized)

	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.store.UpsertIncrement(ctx, hash, UpsertFields{
		NormalizedMessage: normalized,
		SignalType:        sig.SignalType,
		SeenAt:            seenAt,
	})
	if err != nil {
		return 0, err
	}

	if pinned, ok := t.seen[hash]; ok {
		return pinned, nil
	}
	t.seen[hash] = p.OccurrenceCount
	return p.OccurrenceCount, nil
}
