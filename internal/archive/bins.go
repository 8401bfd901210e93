package archive

import (
	"fmt"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
)

// BinKey buckets a phenotype into a coarse categorical key for grouping
// archive entries. It is not used for selection.
func BinKey(p phenotype.Phenotype) string {
	return fmt.Sprintf("depth=%d|breadth=%s|cost=%s|context=%s",
		depthBin(p.Depth), breadthBin(p.Breadth), costBin(p.Cost), contextBin(p.ContextSize))
}

func depthBin(d int) int {
	switch {
	case d <= 1:
		return 1
	case d >= 4:
		return 4
	default:
		return d
	}
}

func breadthBin(b int) string {
	switch {
	case b <= 2:
		return "1-2"
	case b <= 4:
		return "3-4"
	case b <= 7:
		return "5-7"
	default:
		return "8+"
	}
}

func costBin(c float64) string {
	switch {
	case c < 0.33:
		return "low"
	case c < 0.66:
		return "med"
	default:
		return "high"
	}
}

func contextBin(tokens int) string {
	switch {
	case tokens < 10000:
		return "low"
	case tokens < 50000:
		return "med"
	default:
		return "high"
	}
}

// GroupByBin groups the entries of a by BinKey, preserving entry order
// within each bin.
func GroupByBin(a *Archive) map[string][]Entry {
	groups := make(map[string][]Entry)
	if a == nil {
		return groups
	}
	for _, e := range a.Entries {
		key := BinKey(e.Pattern.Phenotype)
		groups[key] = append(groups[key], e)
	}
	return groups
}
