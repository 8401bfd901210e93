package archive

import (
	"math"
	"sort"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Match is an archive entry with its distance to a target phenotype.
type Match struct {
	Entry
	Distance float64
}

// SelectPattern returns the archived pattern nearest to target. Every
// dimension is min-max normalised over the archive plus the target before
// taking the Euclidean distance. Ties go to the earliest entry. An empty
// archive yields false.
func SelectPattern(a *Archive, target phenotype.Phenotype) (*models.DecompositionPattern, bool) {
	matches := Rank(a, target, 1)
	if len(matches) == 0 {
		return nil, false
	}
	p := matches[0].Pattern
	return &p, true
}

// Rank returns up to k entries ordered by distance to target, nearest first.
// k <= 0 returns every entry.
func Rank(a *Archive, target phenotype.Phenotype, k int) []Match {
	if a.Len() == 0 {
		return nil
	}

	points := make([]vector, 0, len(a.Entries)+1)
	for _, e := range a.Entries {
		points = append(points, toVector(e.Pattern.Phenotype))
	}
	points = append(points, toVector(target))
	norm := normalize(points)
	t := norm[len(norm)-1]

	matches := make([]Match, len(a.Entries))
	for i, e := range a.Entries {
		matches[i] = Match{Entry: e, Distance: distance(norm[i], t)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

const dims = 5

type vector [dims]float64

func toVector(p phenotype.Phenotype) vector {
	return vector{
		float64(p.Depth),
		float64(p.Breadth),
		p.Cost,
		float64(p.ContextSize),
		p.SuccessRate,
	}
}

// normalize scales each dimension to [0,1] across points. A dimension with
// no spread maps to 0.5 for every point.
func normalize(points []vector) []vector {
	var lo, hi vector
	for d := 0; d < dims; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, p := range points {
		for d := 0; d < dims; d++ {
			lo[d] = math.Min(lo[d], p[d])
			hi[d] = math.Max(hi[d], p[d])
		}
	}

	out := make([]vector, len(points))
	for i, p := range points {
		for d := 0; d < dims; d++ {
			span := hi[d] - lo[d]
			if span == 0 {
				out[i][d] = 0.5
				continue
			}
			out[i][d] = (p[d] - lo[d]) / span
		}
	}
	return out
}

func distance(a, b vector) float64 {
	var sum float64
	for d := 0; d < dims; d++ {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
