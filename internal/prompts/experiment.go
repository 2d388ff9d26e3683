package prompts

import (
	"errors"
	"fmt"
)

// Variant is one arm of an experiment.
type Variant struct {
	Name    string  `yaml:"name" json:"name"`
	Version string  `yaml:"version" json:"version"`
	Traffic float64 `yaml:"traffic" json:"traffic"`
	Model   string  `yaml:"model" json:"model,omitempty"`
}

// Experiment splits traffic between prompt versions by weight. Weights need
// not sum to 1.
type Experiment struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Active    bool      `yaml:"active" json:"active"`
	Variants  []Variant `yaml:"variants" json:"variants"`
	Metrics   []string  `yaml:"metrics" json:"metrics,omitempty"`
	StartDate string    `yaml:"start_date" json:"start_date,omitempty"`
	EndDate   string    `yaml:"end_date" json:"end_date,omitempty"`
}

var ErrNoTraffic = errors.New("experiment has no variants with traffic")

// TotalTraffic sums the variant weights.
func (e *Experiment) TotalTraffic() float64 {
	var total float64
	for _, v := range e.Variants {
		total += v.Traffic
	}
	return total
}

// SelectVariant draws a variant with probability proportional to its
// traffic. r must return values in [0, 1).
func (e *Experiment) SelectVariant(r func() float64) (Variant, error) {
	total := e.TotalTraffic()
	if len(e.Variants) == 0 || total <= 0 {
		return Variant{}, fmt.Errorf("experiment %s: %w", e.ID, ErrNoTraffic)
	}

	x := r() * total
	var cumulative float64
	for _, v := range e.Variants {
		cumulative += v.Traffic
		if x <= cumulative {
			return v, nil
		}
	}
	return e.Variants[len(e.Variants)-1], nil
}
