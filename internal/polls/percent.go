package polls

import "math"

// Percentages maps vote counts to rounded percentages of the total. All
// zeros when nothing has been voted. The rounded values may not sum to 100.
func Percentages(counts []int) []int {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]int, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = int(math.Round(float64(c) / float64(total) * 100))
	}
	return out
}
