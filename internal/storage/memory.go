package storage

import (
	"context"
	"fmt"
	"sync"

	"budgetgrid/internal/core"
)

// MemoryStore is an in-memory plan store with the same compare-and-swap
// semantics as the SQLite repository. It backs tests and any deployment
// that does not need durability. Plans are cloned on the way in and out so
// callers never share grid state with the store.
type MemoryStore struct {
	mu     sync.Mutex
	plans  map[string]*core.BudgetPlan
	events map[string][]core.RedistributionEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:  make(map[string]*core.BudgetPlan),
		events: make(map[string][]core.RedistributionEvent),
	}
}

func planKey(userID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", userID, year, month)
}

func (s *MemoryStore) CreatePlan(_ context.Context, plan *core.BudgetPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planKey(plan.UserID, plan.Year, plan.Month)
	if _, exists := s.plans[key]; exists {
		return &core.ConflictError{UserID: plan.UserID, Year: plan.Year, Month: plan.Month, Version: plan.Version}
	}
	s.plans[key] = plan.Clone()
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, userID string, year, month int) (*core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[planKey(userID, year, month)]
	if !ok {
		return nil, core.ErrPlanNotFound
	}
	return plan.Clone(), nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, plan *core.BudgetPlan, expectedVersion int64, events []core.RedistributionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planKey(plan.UserID, plan.Year, plan.Month)
	stored, ok := s.plans[key]
	if !ok {
		return core.ErrPlanNotFound
	}
	if stored.Version != expectedVersion {
		return &core.ConflictError{UserID: plan.UserID, Year: plan.Year, Month: plan.Month, Version: expectedVersion}
	}
	next := plan.Clone()
	next.Version = expectedVersion + 1
	s.plans[key] = next
	s.events[key] = append(s.events[key], events...)
	plan.Version = next.Version
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, userID string, year, month int) ([]core.RedistributionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RedistributionEvent(nil), s.events[planKey(userID, year, month)]...), nil
}
