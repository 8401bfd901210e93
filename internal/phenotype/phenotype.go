// Package phenotype quantifies how large a decomposition has become and
// bounds it with per-priority limits.
//
// Everything in this package is pure: no function mutates its arguments and
// identical inputs always yield identical outputs.
package phenotype

import "github.com/ShayCichocki/geodecomp/pkg/models"

// Phenotype is the footprint of a decomposition run.
type Phenotype = models.Phenotype

// Initial returns the phenotype of a run that has not started:
// all zero except a perfect success rate.
func Initial() Phenotype {
	return Phenotype{SuccessRate: 1.0}
}

// Field replaces one field of a phenotype. Use the With* constructors.
type Field func(*Phenotype)

// WithDepth replaces Depth.
func WithDepth(d int) Field { return func(p *Phenotype) { p.Depth = d } }

// WithBreadth replaces Breadth.
func WithBreadth(b int) Field { return func(p *Phenotype) { p.Breadth = b } }

// WithCost replaces Cost.
func WithCost(c float64) Field { return func(p *Phenotype) { p.Cost = c } }

// WithContext replaces ContextSize.
func WithContext(tokens int) Field { return func(p *Phenotype) { p.ContextSize = tokens } }

// WithSuccessRate replaces SuccessRate.
func WithSuccessRate(r float64) Field { return func(p *Phenotype) { p.SuccessRate = r } }

// Update returns a copy of p with the given fields replaced.
// Fields that are not named keep their value.
func Update(p Phenotype, fields ...Field) Phenotype {
	for _, f := range fields {
		f(&p)
	}
	return p
}

// Merge combines the phenotypes of two sibling sub-runs.
// Depth and breadth take the maximum, cost and context are summed and the
// success rate is the arithmetic mean.
func Merge(a, b Phenotype) Phenotype {
	return Phenotype{
		Depth:       max(a.Depth, b.Depth),
		Breadth:     max(a.Breadth, b.Breadth),
		Cost:        a.Cost + b.Cost,
		ContextSize: a.ContextSize + b.ContextSize,
		SuccessRate: (a.SuccessRate + b.SuccessRate) / 2,
	}
}
