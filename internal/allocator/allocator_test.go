package allocator

import (
	"errors"
	"testing"

	"budgetgrid/internal/core"
)

func TestAllocateRemainderCorrectness(t *testing.T) {
	// 1000.00 split 0.333/0.333/0.334: the three allocations must sum to
	// exactly 1000.00, with the leftover cent going to the largest fraction.
	cats := []core.Category{
		{Name: "food", Weight: 0.333, Priority: 1},
		{Name: "transport", Weight: 0.333, Priority: 2},
		{Name: "fun", Weight: 0.334, Priority: 3},
	}
	got, err := Allocate(100000, cats)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	var sum int64
	for _, v := range got {
		sum += v
	}
	if sum != 100000 {
		t.Fatalf("allocations sum to %d, want 100000", sum)
	}
	if got["food"] != 33300 || got["transport"] != 33300 || got["fun"] != 33400 {
		t.Fatalf("unexpected split: food=%d transport=%d fun=%d", got["food"], got["transport"], got["fun"])
	}
}

func TestAllocateExactConservation(t *testing.T) {
	cases := []struct {
		name   string
		income int64
		cats   []core.Category
	}{
		{
			name:   "thirds with awkward income",
			income: 100,
			cats: []core.Category{
				{Name: "a", Weight: 1.0 / 3, Priority: 1},
				{Name: "b", Weight: 1.0 / 3, Priority: 2},
				{Name: "c", Weight: 1.0 / 3, Priority: 3},
			},
		},
		{
			name:   "sevenths",
			income: 123457,
			cats: []core.Category{
				{Name: "a", Weight: 1.0 / 7, Priority: 1},
				{Name: "b", Weight: 2.0 / 7, Priority: 2},
				{Name: "c", Weight: 4.0 / 7, Priority: 3},
			},
		},
		{
			name:   "single category",
			income: 999,
			cats:   []core.Category{{Name: "all", Weight: 1.0, Priority: 1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Allocate(tc.income, tc.cats)
			if err != nil {
				t.Fatalf("Allocate failed: %v", err)
			}
			var sum int64
			for _, v := range got {
				sum += v
			}
			if sum != tc.income {
				t.Fatalf("allocations sum to %d, want %d", sum, tc.income)
			}
		})
	}
}

func TestAllocatePriorityTieBreak(t *testing.T) {
	// 3 cents across two equal halves: both fractions are 0.5, lowest
	// priority rank takes the odd cent.
	cats := []core.Category{
		{Name: "second", Weight: 0.5, Priority: 2},
		{Name: "first", Weight: 0.5, Priority: 1},
	}
	got, err := Allocate(3, cats)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got["first"] != 2 || got["second"] != 1 {
		t.Fatalf("tie should go to priority 1: first=%d second=%d", got["first"], got["second"])
	}
}

func TestAllocateDeterminism(t *testing.T) {
	cats := []core.Category{
		{Name: "a", Weight: 0.25, Priority: 1},
		{Name: "b", Weight: 0.25, Priority: 2},
		{Name: "c", Weight: 0.25, Priority: 3},
		{Name: "d", Weight: 0.25, Priority: 4},
	}
	first, err := Allocate(1001, cats)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Allocate(1001, cats)
		if err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		for name, v := range first {
			if again[name] != v {
				t.Fatalf("run %d: allocation for %q changed from %d to %d", i, name, v, again[name])
			}
		}
	}
}

func TestAllocateRejections(t *testing.T) {
	valid := []core.Category{
		{Name: "a", Weight: 0.5, Priority: 1},
		{Name: "b", Weight: 0.5, Priority: 2},
	}

	t.Run("non-positive income", func(t *testing.T) {
		for _, income := range []int64{0, -100} {
			if _, err := Allocate(income, valid); !core.IsValidation(err) {
				t.Fatalf("income %d: expected ValidationError, got %v", income, err)
			}
		}
	})

	t.Run("weights not summing to one", func(t *testing.T) {
		bad := []core.Category{
			{Name: "a", Weight: 0.5, Priority: 1},
			{Name: "b", Weight: 0.4, Priority: 2},
		}
		var cfgErr *core.ConfigurationError
		if _, err := Allocate(1000, bad); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("within tolerance is accepted", func(t *testing.T) {
		near := []core.Category{
			{Name: "a", Weight: 0.5004, Priority: 1},
			{Name: "b", Weight: 0.5, Priority: 2},
		}
		if _, err := Allocate(1000, near); err != nil {
			t.Fatalf("weights within tolerance should pass, got %v", err)
		}
	})

	t.Run("duplicate category", func(t *testing.T) {
		dup := []core.Category{
			{Name: "a", Weight: 0.5, Priority: 1},
			{Name: "a", Weight: 0.5, Priority: 2},
		}
		var cfgErr *core.ConfigurationError
		if _, err := Allocate(1000, dup); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("negative weight", func(t *testing.T) {
		neg := []core.Category{
			{Name: "a", Weight: 1.5, Priority: 1},
			{Name: "b", Weight: -0.5, Priority: 2},
		}
		var cfgErr *core.ConfigurationError
		if _, err := Allocate(1000, neg); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("no categories", func(t *testing.T) {
		var cfgErr *core.ConfigurationError
		if _, err := Allocate(1000, nil); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})
}
