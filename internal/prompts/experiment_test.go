package prompts

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestSelectVariant_Weights(t *testing.T) {
	exp := &Experiment{
		ID: "exp",
		Variants: []Variant{
			{Name: "control", Version: "1.0.0", Traffic: 0.9},
			{Name: "treatment", Version: "1.1.0", Traffic: 0.1},
		},
	}

	tests := []struct {
		r    float64
		want string
	}{
		{0.0, "control"},
		{0.5, "control"},
		{0.9, "control"},
		{0.9001, "treatment"},
		{0.99, "treatment"},
	}
	for _, tt := range tests {
		v, err := exp.SelectVariant(func() float64 { return tt.r })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Name != tt.want {
			t.Errorf("r=%v: expected %s, got %s", tt.r, tt.want, v.Name)
		}
	}
}

func TestSelectVariant_UnnormalisedWeights(t *testing.T) {
	exp := &Experiment{
		ID: "exp",
		Variants: []Variant{
			{Name: "a", Traffic: 3},
			{Name: "b", Traffic: 1},
		},
	}
	v, _ := exp.SelectVariant(func() float64 { return 0.8 })
	if v.Name != "b" {
		t.Errorf("expected b for 0.8 of total 4, got %s", v.Name)
	}
}

func TestSelectVariant_Distribution(t *testing.T) {
	exp := &Experiment{
		ID: "exp",
		Variants: []Variant{
			{Name: "control", Traffic: 0.9},
			{Name: "treatment", Traffic: 0.1},
		},
	}
	rng := rand.New(rand.NewPCG(1, 2))

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		v, _ := exp.SelectVariant(rng.Float64)
		counts[v.Name]++
	}
	ratio := float64(counts["control"]) / n
	if ratio < 0.88 || ratio > 0.92 {
		t.Errorf("expected ~90%% control, got %.3f", ratio)
	}
}

func TestSelectVariant_Errors(t *testing.T) {
	tests := []struct {
		name string
		exp  *Experiment
	}{
		{"no variants", &Experiment{ID: "empty"}},
		{"zero traffic", &Experiment{ID: "zero", Variants: []Variant{{Name: "a"}, {Name: "b"}}}},
	}
	for _, tt := range tests {
		_, err := tt.exp.SelectVariant(func() float64 { return 0.5 })
		if !errors.Is(err, ErrNoTraffic) {
			t.Errorf("%s: expected ErrNoTraffic, got %v", tt.name, err)
		}
	}
}
