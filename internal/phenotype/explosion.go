package phenotype

// Dimension names the phenotype dimension that exceeded its limit.
type Dimension int

const (
	// DimensionNone means no limit was exceeded.
	DimensionNone Dimension = iota
	DimensionDepth
	DimensionBreadth
	DimensionCost
	DimensionContext
	// DimensionSuccess means the success rate fell below the minimum.
	DimensionSuccess
)

// String returns the dimension name.
func (d Dimension) String() string {
	switch d {
	case DimensionNone:
		return "none"
	case DimensionDepth:
		return "depth"
	case DimensionBreadth:
		return "breadth"
	case DimensionCost:
		return "cost"
	case DimensionContext:
		return "context"
	case DimensionSuccess:
		return "success_rate"
	default:
		return "unknown"
	}
}

// Exploded reports whether d names a violated dimension.
func (d Dimension) Exploded() bool {
	return d != DimensionNone
}

// DetectExplosion returns the first violated dimension, checked in the
// order depth, breadth, cost, context, success rate.
// A depth overrun is reported ahead of a cost overrun even when both hold.
func DetectExplosion(p Phenotype, l Limits) Dimension {
	switch {
	case p.Depth > l.MaxDepth:
		return DimensionDepth
	case p.Breadth > l.MaxBreadth:
		return DimensionBreadth
	case p.Cost > l.MaxCost:
		return DimensionCost
	case p.ContextSize > l.MaxContext:
		return DimensionContext
	case p.SuccessRate < l.MinSuccessRate:
		return DimensionSuccess
	default:
		return DimensionNone
	}
}
