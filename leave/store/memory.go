// Package store provides an in-memory leave.Store and a fixture directory
// implementing the collaborator interfaces. Both are meant for tests and
// development; store/sqlite is the durable implementation.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/attunehr/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory ledger (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	seq  int64
	rows []leave.BalanceChange // insertion order == id order
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(_ context.Context, bc *leave.BalanceChange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	row := *bc
	row.ID = m.seq
	m.rows = append(m.rows, row)
	return row.ID, nil
}

func (m *Memory) Update(_ context.Context, bc *leave.BalanceChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].ID == bc.ID {
			m.rows[i] = *bc
			return nil
		}
	}
	return leave.ErrBalanceChangeNotFound
}

func (m *Memory) FindByID(_ context.Context, id int64) (*leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows {
		if row.ID == id {
			out := row
			return &out, nil
		}
	}
	return nil, leave.ErrBalanceChangeNotFound
}

func (m *Memory) BySource(_ context.Context, sourceType leave.SourceType, sourceIDs []int64) ([]leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := toSet(sourceIDs)
	var out []leave.BalanceChange
	for _, row := range m.rows {
		if row.SourceType == sourceType && ids[row.SourceID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Memory) EntitlementComponents(_ context.Context, entitlementID int64, expiredOnly bool, asOf leave.Date) ([]leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.BalanceChange
	for _, row := range m.rows {
		if row.SourceType != leave.SourceEntitlement || row.SourceID != entitlementID {
			continue
		}
		if expiredOnly {
			if row.IsCorrection() && row.ExpiryDate != nil && row.ExpiryDate.Before(asOf) {
				out = append(out, row)
			}
		} else if !row.IsCorrection() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Memory) CorrectionFor(_ context.Context, originalID int64) (*leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows {
		if row.ExpiredBy() == originalID {
			out := row
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) DueForExpiry(_ context.Context, asOf leave.Date) ([]leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	corrected := make(map[int64]bool)
	for _, row := range m.rows {
		if row.IsCorrection() {
			corrected[row.ExpiredBy()] = true
		}
	}

	var out []leave.BalanceChange
	for _, row := range m.rows {
		if row.IsCorrection() || row.ExpiryDate == nil || corrected[row.ID] {
			continue
		}
		if row.ExpiryDate.Before(asOf) {
			out = append(out, row)
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (m *Memory) ExpiringBetween(_ context.Context, from, to leave.Date) ([]leave.BalanceChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.BalanceChange
	for _, row := range m.rows {
		if row.IsCorrection() || row.ExpiryDate == nil {
			continue
		}
		if row.ExpiryDate.Between(from, to) {
			out = append(out, row)
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (m *Memory) DeleteBySource(_ context.Context, sourceType leave.SourceType, sourceIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := toSet(sourceIDs)
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.SourceType == sourceType && ids[row.SourceID] {
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return nil
}

// All returns a copy of every row, ordered by id. Test helper.
func (m *Memory) All() []leave.BalanceChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]leave.BalanceChange(nil), m.rows...)
}

func sortByExpiry(rows []leave.BalanceChange) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ExpiryDate.Equal(*rows[j].ExpiryDate) {
			return rows[i].ExpiryDate.Before(*rows[j].ExpiryDate)
		}
		return rows[i].ID < rows[j].ID
	})
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

var _ leave.Store = (*Memory)(nil)
