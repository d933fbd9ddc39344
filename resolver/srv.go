package resolver

import (
	"math/rand"
	"slices"
)

// orderSRV arranges records lower priority first. Within one priority
// targets are drawn weighted random, the standard srv tie break, so
// repeated lookups spread load while still honoring priorities.
func orderSRV(records []SRV) []SRV {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b SRV) int {
		return int(a.Priority) - int(b.Priority)
	})
	begin := 0
	for begin < len(ordered) {
		end := begin + 1
		for end < len(ordered) && ordered[end].Priority == ordered[begin].Priority {
			end++
		}
		shuffleWeighted(ordered[begin:end])
		begin = end
	}
	return ordered
}

func shuffleWeighted(group []SRV) {
	for i := 0; i < len(group)-1; i++ {
		total := 0
		for _, srv := range group[i:] {
			total += int(srv.Weight) + 1
		}
		n := rand.Intn(total)
		for j := i; j < len(group); j++ {
			n -= int(group[j].Weight) + 1
			if n < 0 {
				group[i], group[j] = group[j], group[i]
				break
			}
		}
	}
}
