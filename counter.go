package featscan

import (
	"cmp"
	"slices"
)

// Counter is the number of occurrences of one label.
type Counter struct {
	Space LabelSpace
	ID    int
	Count uint64
}

// Name returns the display name of the counted label.
func (c Counter) Name() string {
	return c.Space.Name(c.ID)
}

// Detail is a feature counter together with the mnemonics credited under it.
type Detail struct {
	Counter
	Mnemonics []Counter
}

func byCountDesc(a, b Counter) int {
	return cmp.Compare(b.Count, a.Count)
}

// SortCounters sorts counters by count, largest first. Counters with equal
// counts keep their relative order.
func SortCounters(counters []Counter) {
	slices.SortStableFunc(counters, byCountDesc)
}

// SortDetails sorts details by feature count, largest first, and each
// detail's mnemonics independently, with the same tie rule as SortCounters.
func SortDetails(details []Detail) {
	slices.SortStableFunc(details, func(a, b Detail) int {
		return byCountDesc(a.Counter, b.Counter)
	})
	for i := range details {
		SortCounters(details[i].Mnemonics)
	}
}

// Total sums the counts.
func Total(counters []Counter) uint64 {
	var total uint64
	for _, c := range counters {
		total += c.Count
	}
	return total
}

// DetailTotal sums the feature counts of details.
func DetailTotal(details []Detail) uint64 {
	var total uint64
	for _, d := range details {
		total += d.Count
	}
	return total
}

// Percent returns count as a percentage of total, or 0 when total is 0.
func Percent(count, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

// HasCPUID reports whether a finalized feature list counts CPUID.
func HasCPUID(features []Counter) bool {
	for _, c := range features {
		if c.Space == SpaceFeature && c.ID == int(FeatureCPUID) && c.Count > 0 {
			return true
		}
	}
	return false
}

// collect returns the non-zero entries of a dense count array as counters,
// in id order.
func collect(space LabelSpace, counts []uint64) []Counter {
	var out []Counter
	for id, n := range counts {
		if n > 0 {
			out = append(out, Counter{Space: space, ID: id, Count: n})
		}
	}
	return out
}
