package models

// Phenotype is the quantitative footprint of a decomposition run: how deep
// and wide the tree grew, what it cost, how much context it consumed and how
// well its leaves fared.
type Phenotype struct {
	Depth       int     `json:"depth" yaml:"depth"`
	Breadth     int     `json:"breadth" yaml:"breadth"`
	Cost        float64 `json:"cost" yaml:"cost"`
	ContextSize int     `json:"context_size" yaml:"context_size"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}
