package delivery

import (
	"math/rand"

	"github.com/prepworks/prepworks-engine/internal/catalog"
)

// Selector draws question IDs for dynamic sub-sections. The RNG is injected
// so tests can fix a seed and assert exact output sets.
type Selector struct {
	rng *rand.Rand
}

func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// tierRatios is a distribution over catalog.Tiers, easiest first.
type tierRatios [5]float64

// ratiosForPerformance maps a rolling correct ratio to a target difficulty
// distribution. Bands follow GMAT-like adaptivity: stronger performance
// shifts weight toward the hard tiers.
func ratiosForPerformance(correctRatio float64) tierRatios {
	switch {
	case correctRatio >= 0.80:
		return tierRatios{0.0, 0.1, 0.2, 0.3, 0.4}
	case correctRatio >= 0.60:
		return tierRatios{0.0, 0.1, 0.3, 0.4, 0.2}
	case correctRatio >= 0.40:
		return tierRatios{0.1, 0.2, 0.4, 0.2, 0.1}
	default:
		return tierRatios{0.2, 0.2, 0.3, 0.2, 0.1}
	}
}

// byTier partitions a pool into per-tier ID lists, preserving input order.
func byTier(pool []catalog.PoolEntry) map[catalog.Difficulty][]string {
	out := make(map[catalog.Difficulty][]string, len(catalog.Tiers))
	for _, e := range pool {
		out[e.Difficulty] = append(out[e.Difficulty], e.ID)
	}
	return out
}

// FirstSection selects the opening sub-section of a dynamic attempt: an even
// split of n across the five tiers, remainder filled round-robin from tiers
// that still have unused questions. Under-fills when the pool runs dry.
func (s *Selector) FirstSection(pool []catalog.PoolEntry, n int) []string {
	tiers := byTier(pool)
	perTier := n / len(catalog.Tiers)

	selected := make([]string, 0, n)
	for _, tier := range catalog.Tiers {
		selected = append(selected, s.sample(tiers[tier], perTier)...)
	}
	return s.fill(selected, tiers, n)
}

// AdaptiveSection selects a subsequent sub-section from the running
// performance: floor(n × ratio) per tier, shortfall filled round-robin.
func (s *Selector) AdaptiveSection(pool []catalog.PoolEntry, n, correct, incorrect int) []string {
	total := correct + incorrect
	if total < 1 {
		total = 1
	}
	ratios := ratiosForPerformance(float64(correct) / float64(total))
	tiers := byTier(pool)

	selected := make([]string, 0, n)
	for i, tier := range catalog.Tiers {
		k := int(float64(n) * ratios[i])
		selected = append(selected, s.sample(tiers[tier], k)...)
	}
	return s.fill(selected, tiers, n)
}

// fill tops selected up to n by round-robin draws across tiers with unused
// questions, then truncates. Stops early when every tier is exhausted.
func (s *Selector) fill(selected []string, tiers map[catalog.Difficulty][]string, n int) []string {
	used := make(map[string]bool, len(selected))
	for _, id := range selected {
		used[id] = true
	}
	for len(selected) < n {
		progressed := false
		for _, tier := range catalog.Tiers {
			var unused []string
			for _, id := range tiers[tier] {
				if !used[id] {
					unused = append(unused, id)
				}
			}
			if len(unused) == 0 {
				continue
			}
			pick := unused[s.rng.Intn(len(unused))]
			selected = append(selected, pick)
			used[pick] = true
			progressed = true
			if len(selected) == n {
				break
			}
		}
		if !progressed {
			break
		}
	}
	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}

// sample draws up to k IDs uniformly without replacement.
func (s *Selector) sample(ids []string, k int) []string {
	if k <= 0 || len(ids) == 0 {
		return nil
	}
	if k > len(ids) {
		k = len(ids)
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	return cp[:k]
}

// Shuffle randomizes a question list in place (practice delivery order).
func (s *Selector) Shuffle(ids []string) {
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
