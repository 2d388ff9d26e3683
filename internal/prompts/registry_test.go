package prompts

import (
	"errors"
	"sync"
	"testing"
)

func newTestRegistry(t *testing.T, r float64) *Registry {
	t.Helper()
	reg := NewRegistry(WithRand(func() float64 { return r }))
	for _, v := range []string{"1.0.0", "1.1.0"} {
		if err := reg.Register(classificationTemplate(v)); err != nil {
			t.Fatalf("register %s: %v", v, err)
		}
	}
	return reg
}

func TestRegistry_FirstVersionIsActive(t *testing.T) {
	reg := newTestRegistry(t, 0)

	v, err := reg.GetActiveVersion("classification")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "1.0.0" {
		t.Errorf("expected first registered version active, got %s", v)
	}

	tmpl, err := reg.Get("classification", "")
	if err != nil || tmpl.Version != "1.0.0" {
		t.Errorf("expected active template 1.0.0, got %v (%v)", tmpl, err)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	reg := newTestRegistry(t, 0)

	_, err := reg.Get("classification", "9.9.9")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(nf.Available) != 2 || nf.Available[0] != "1.0.0" || nf.Available[1] != "1.1.0" {
		t.Errorf("expected available versions listed, got %v", nf.Available)
	}

	if _, err := reg.GetActive("unknown"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown id, got %v", err)
	}
	if _, err := reg.GetActiveVersion("unknown"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown id, got %v", err)
	}
}

func TestRegistry_SetActive(t *testing.T) {
	reg := newTestRegistry(t, 0)

	if err := reg.SetActive("classification", "1.1.0"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if v, _ := reg.GetActiveVersion("classification"); v != "1.1.0" {
		t.Errorf("expected 1.1.0 active, got %s", v)
	}
	if err := reg.SetActive("classification", "2.0.0"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unregistered version, got %v", err)
	}
}

func TestRegistry_OverwriteKeepsActive(t *testing.T) {
	reg := newTestRegistry(t, 0)
	replacement := classificationTemplate("1.1.0")
	replacement.SystemPrompt = "replaced"
	if err := reg.Register(replacement); err != nil {
		t.Fatalf("register: %v", err)
	}
	tmpl, _ := reg.Get("classification", "1.1.0")
	if tmpl.SystemPrompt != "replaced" {
		t.Error("expected overwrite to replace the template")
	}
	if v, _ := reg.GetActiveVersion("classification"); v != "1.0.0" {
		t.Errorf("overwrite must not move the active version, got %s", v)
	}
}

func TestRegistry_GetForExperiment(t *testing.T) {
	tests := []struct {
		name        string
		experiment  *Experiment
		expID       string
		r           float64
		wantVersion string
		wantVariant string
		wantModel   string
	}{
		{
			name:        "no experiment",
			wantVersion: "1.0.0",
			wantVariant: VariantActive,
		},
		{
			name:        "unknown experiment falls back",
			expID:       "missing",
			wantVersion: "1.0.0",
			wantVariant: VariantActive,
		},
		{
			name: "inactive experiment falls back",
			experiment: &Experiment{ID: "exp", Active: false, Variants: []Variant{
				{Name: "treatment", Version: "1.1.0", Traffic: 1},
			}},
			expID:       "exp",
			wantVersion: "1.0.0",
			wantVariant: VariantActive,
		},
		{
			name: "active experiment selects variant",
			experiment: &Experiment{ID: "exp", Active: true, Variants: []Variant{
				{Name: "control", Version: "1.0.0", Traffic: 0.9},
				{Name: "treatment", Version: "1.1.0", Traffic: 0.1, Model: "gpt-4.1-mini"},
			}},
			expID:       "exp",
			r:           0.95,
			wantVersion: "1.1.0",
			wantVariant: "treatment",
			wantModel:   "gpt-4.1-mini",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, tt.r)
			if tt.experiment != nil {
				if err := reg.AddExperiment(tt.experiment); err != nil {
					t.Fatalf("add experiment: %v", err)
				}
			}

			tmpl, sel, err := reg.GetForExperiment("classification", tt.expID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tmpl.Version != tt.wantVersion || sel.Version != tt.wantVersion {
				t.Errorf("expected version %s, got template %s selection %s", tt.wantVersion, tmpl.Version, sel.Version)
			}
			if sel.Variant != tt.wantVariant {
				t.Errorf("expected variant %s, got %s", tt.wantVariant, sel.Variant)
			}
			if sel.Model != tt.wantModel {
				t.Errorf("expected model %q, got %q", tt.wantModel, sel.Model)
			}
			if sel.PromptID != "classification" {
				t.Errorf("expected prompt id classification, got %s", sel.PromptID)
			}
			if tt.wantVariant != VariantActive && sel.ExperimentID != tt.expID {
				t.Errorf("expected experiment id %s, got %s", tt.expID, sel.ExperimentID)
			}
		})
	}
}

func TestRegistry_GetForExperimentErrors(t *testing.T) {
	reg := newTestRegistry(t, 0.5)
	reg.AddExperiment(&Experiment{ID: "zero", Active: true, Variants: []Variant{{Name: "a", Version: "1.0.0"}}})
	reg.AddExperiment(&Experiment{ID: "ghost", Active: true, Variants: []Variant{{Name: "a", Version: "3.0.0", Traffic: 1}}})

	if _, _, err := reg.GetForExperiment("classification", "zero"); !errors.Is(err, ErrNoTraffic) {
		t.Errorf("expected ErrNoTraffic, got %v", err)
	}
	if _, _, err := reg.GetForExperiment("classification", "ghost"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if err := reg.AddExperiment(&Experiment{}); err == nil {
		t.Error("expected error for experiment without id")
	}
}

func TestRegistry_ListAndStats(t *testing.T) {
	reg := newTestRegistry(t, 0)
	audio := classificationTemplate("1.0.0")
	audio.ID = "classification_audio"
	reg.Register(audio)
	reg.AddExperiment(&Experiment{ID: "exp", Active: true})
	reg.AddExperiment(&Experiment{ID: "old", Active: false})

	ids := reg.ListPrompts()
	if len(ids) != 2 || ids[0] != "classification" || ids[1] != "classification_audio" {
		t.Errorf("unexpected prompt ids: %v", ids)
	}
	if v := reg.ListVersions("classification"); len(v) != 2 {
		t.Errorf("expected 2 versions, got %v", v)
	}

	st := reg.Stats()
	if st.TotalTemplates != 3 || st.UniquePrompts != 2 || st.ActiveExperiments != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.ActiveVersions["classification"] != "1.0.0" {
		t.Errorf("unexpected active versions: %v", st.ActiveVersions)
	}
	if exps := reg.Experiments(); len(exps) != 2 || exps[0].ID != "exp" {
		t.Errorf("unexpected experiments: %v", exps)
	}
}

func TestRegistry_ReplaceKeepsPinnedVersion(t *testing.T) {
	live := newTestRegistry(t, 0)
	live.SetActive("classification", "1.1.0")

	next := newTestRegistry(t, 0)
	live.Replace(next)
	if v, _ := live.GetActiveVersion("classification"); v != "1.1.0" {
		t.Errorf("expected pinned 1.1.0 to survive reload, got %s", v)
	}

	onlyOld := NewRegistry()
	onlyOld.Register(classificationTemplate("1.0.0"))
	live.Replace(onlyOld)
	if v, _ := live.GetActiveVersion("classification"); v != "1.0.0" {
		t.Errorf("expected fallback to reloaded active once pinned version disappears, got %s", v)
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg := newTestRegistry(t, 0.5)
	reg.AddExperiment(&Experiment{ID: "exp", Active: true, Variants: []Variant{
		{Name: "a", Version: "1.0.0", Traffic: 1},
		{Name: "b", Version: "1.1.0", Traffic: 1},
	}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, _, err := reg.GetForExperiment("classification", "exp"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				next := newTestRegistry(t, 0.5)
				reg.Replace(next)
			}
		}()
	}
	wg.Wait()
}
