package workflow

import (
	"fmt"
	"sort"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// HistoryLedger is the append-only audit trail of one request. Appends
// are monotonic: an entry whose FromStage does not match the ledger's
// current derived stage is a lost-update race and is rejected with
// CONFLICT. Entries are deduplicated by id so at-least-once delivery of
// the same entry stays harmless.
type HistoryLedger struct {
	entries []entities.HistoryEntry
	seen    map[string]bool
}

func NewHistoryLedger(entries []entities.HistoryEntry) *HistoryLedger {
	l := &HistoryLedger{seen: make(map[string]bool, len(entries))}
	for _, e := range entries {
		if l.seen[e.ID] {
			continue
		}
		l.seen[e.ID] = true
		l.entries = append(l.entries, e)
	}
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Timestamp.Before(l.entries[j].Timestamp)
	})
	return l
}

// CurrentStage is the ToStage of the last entry. ok is false for an
// empty ledger.
func (l *HistoryLedger) CurrentStage() (constants.Stage, bool) {
	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[len(l.entries)-1].ToStage, true
}

// Append adds one entry. The first entry must be a creation entry
// (FromStage == nil); every later entry must continue from the current
// derived stage.
func (l *HistoryLedger) Append(entry entities.HistoryEntry) error {
	if l.seen[entry.ID] {
		return nil
	}

	current, ok := l.CurrentStage()
	if !ok {
		if entry.FromStage != nil {
			return fmt.Errorf("%w: first history entry must have no fromStage", apperrors.ErrConflict)
		}
	} else {
		if entry.FromStage == nil || *entry.FromStage != current {
			return fmt.Errorf("%w: entry fromStage does not match current stage %s", apperrors.ErrConflict, current)
		}
	}

	l.seen[entry.ID] = true
	l.entries = append(l.entries, entry)
	return nil
}

// Replay folds the whole ledger in timestamp order and returns the
// resulting stage. Any gap between one entry's ToStage and the next
// entry's FromStage is a defect.
func (l *HistoryLedger) Replay() (constants.Stage, error) {
	if len(l.entries) == 0 {
		return "", fmt.Errorf("%w: empty history", apperrors.ErrNotFound)
	}
	if l.entries[0].FromStage != nil {
		return "", fmt.Errorf("replay: first entry carries fromStage %s", *l.entries[0].FromStage)
	}

	stage := l.entries[0].ToStage
	for i := 1; i < len(l.entries); i++ {
		e := l.entries[i]
		if e.FromStage == nil || *e.FromStage != stage {
			return "", fmt.Errorf("replay: gap at entry %d (%s): expected fromStage %s", i, e.ID, stage)
		}
		stage = e.ToStage
	}
	return stage, nil
}

// Entries returns the ledger in chronological order.
func (l *HistoryLedger) Entries() []entities.HistoryEntry {
	out := make([]entities.HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries.
func (l *HistoryLedger) Len() int {
	return len(l.entries)
}
