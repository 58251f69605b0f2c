package delivery_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/delivery"
)

// poolOf builds a pool with count questions per tier, IDs like "HARD-3".
func poolOf(perTier int) []catalog.PoolEntry {
	var pool []catalog.PoolEntry
	for _, tier := range catalog.Tiers {
		for i := 0; i < perTier; i++ {
			pool = append(pool, catalog.PoolEntry{
				ID:         fmt.Sprintf("%s-%d", tier, i),
				Difficulty: tier,
			})
		}
	}
	return pool
}

func tierCounts(t *testing.T, pool []catalog.PoolEntry, ids []string) map[catalog.Difficulty]int {
	t.Helper()
	byID := map[string]catalog.Difficulty{}
	for _, e := range pool {
		byID[e.ID] = e.Difficulty
	}
	out := map[catalog.Difficulty]int{}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate question %s in selection", id)
		}
		seen[id] = true
		tier, ok := byID[id]
		if !ok {
			t.Fatalf("question %s not in pool", id)
		}
		out[tier]++
	}
	return out
}

func TestFirstSectionEvenSplit(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(1)))
	pool := poolOf(4)

	ids := sel.FirstSection(pool, 10)
	if len(ids) != 10 {
		t.Fatalf("selected %d questions, want 10", len(ids))
	}
	counts := tierCounts(t, pool, ids)
	// 10/5 = 2 per tier, no remainder.
	for _, tier := range catalog.Tiers {
		if counts[tier] != 2 {
			t.Errorf("tier %s got %d questions, want 2", tier, counts[tier])
		}
	}
}

func TestAdaptiveSectionHighPerformance(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(7)))
	pool := poolOf(6)

	// 16/20 correct = 0.80: top band, weight on the hard tiers.
	ids := sel.AdaptiveSection(pool, 10, 16, 4)
	if len(ids) != 10 {
		t.Fatalf("selected %d questions, want 10", len(ids))
	}
	counts := tierCounts(t, pool, ids)
	want := map[catalog.Difficulty]int{
		catalog.VeryEasy: 0,
		catalog.Easy:     1,
		catalog.Moderate: 2,
		catalog.Hard:     3,
		catalog.VeryHard: 4,
	}
	for tier, n := range want {
		if counts[tier] != n {
			t.Errorf("tier %s got %d questions, want %d", tier, counts[tier], n)
		}
	}
}

func TestAdaptiveSectionLowPerformance(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(7)))
	pool := poolOf(6)

	// 2/10 correct: bottom band, weight shifts to the easy tiers.
	ids := sel.AdaptiveSection(pool, 10, 2, 8)
	counts := tierCounts(t, pool, ids)
	want := map[catalog.Difficulty]int{
		catalog.VeryEasy: 2,
		catalog.Easy:     2,
		catalog.Moderate: 3,
		catalog.Hard:     2,
		catalog.VeryHard: 1,
	}
	for tier, n := range want {
		if counts[tier] != n {
			t.Errorf("tier %s got %d questions, want %d", tier, counts[tier], n)
		}
	}
}

func TestAdaptiveSectionZeroHistory(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(3)))
	pool := poolOf(6)

	// No answers yet must not divide by zero; 0/0 lands in the bottom band.
	ids := sel.AdaptiveSection(pool, 10, 0, 0)
	if len(ids) != 10 {
		t.Fatalf("selected %d questions, want 10", len(ids))
	}
}

func TestSelectionDeterministicForSeed(t *testing.T) {
	pool := poolOf(5)
	a := delivery.NewSelector(rand.New(rand.NewSource(42))).FirstSection(pool, 12)
	b := delivery.NewSelector(rand.New(rand.NewSource(42))).FirstSection(pool, 12)
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverge at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestSelectionUnderfillsOnThinPool(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(1)))
	pool := []catalog.PoolEntry{
		{ID: "a", Difficulty: catalog.Easy},
		{ID: "b", Difficulty: catalog.Hard},
		{ID: "c", Difficulty: catalog.Hard},
	}
	ids := sel.FirstSection(pool, 10)
	if len(ids) != 3 {
		t.Fatalf("selected %d questions from a pool of 3, want 3", len(ids))
	}
	tierCounts(t, pool, ids) // asserts no duplicates
}

func TestRemainderFillsRoundRobin(t *testing.T) {
	sel := delivery.NewSelector(rand.New(rand.NewSource(9)))
	pool := poolOf(3)

	// 7/5 = 1 per tier, remainder 2 filled from tiers with unused questions.
	ids := sel.FirstSection(pool, 7)
	if len(ids) != 7 {
		t.Fatalf("selected %d questions, want 7", len(ids))
	}
	counts := tierCounts(t, pool, ids)
	for _, tier := range catalog.Tiers {
		if counts[tier] < 1 {
			t.Errorf("tier %s got no questions", tier)
		}
	}
}
