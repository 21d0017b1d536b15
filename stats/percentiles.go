package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultPercentiles is the percentile set fixed by the report contract:
// {50, 75, 90, 95, 99}.
var DefaultPercentiles = []float64{50, 75, 90, 95, 99}

// ParsePercentiles parses a comma-separated list of percentile values,
// e.g. "50,75,90,95,99" or "50,99.9", validating that each falls in
// (0, 100]. An empty input yields DefaultPercentiles.
func ParsePercentiles(input string) ([]float64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		out := make([]float64, len(DefaultPercentiles))
		copy(out, DefaultPercentiles)
		return out, nil
	}

	seen := make(map[float64]struct{})
	var out []float64
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percentile %q: %w", tok, err)
		}
		if p <= 0 || p > 100 {
			return nil, fmt.Errorf("percentile %v out of range (0,100]", p)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	sort.Float64s(out)
	return out, nil
}
