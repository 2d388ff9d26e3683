package prompts

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExperimentsFile is the reserved file name holding experiment definitions.
const ExperimentsFile = "experiments.yaml"

// SkippedFile records a prompt file that failed to load.
type SkippedFile struct {
	Path string
	Err  error
}

// LoadResult summarises a directory load.
type LoadResult struct {
	Templates   int
	Experiments int
	Skipped     []SkippedFile
}

type experimentsDoc struct {
	Experiments []*Experiment `yaml:"experiments"`
}

// LoadTemplateFile parses a single template YAML file.
func LoadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("prompt file %s is empty", path)
	}
	t := &Template{LLMConfig: DefaultLLMConfig()}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if missing := t.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("prompt file %s: missing required fields: %s", path, strings.Join(missing, ", "))
	}
	return t, nil
}

// LoadExperimentsFile parses an experiments YAML file.
func LoadExperimentsFile(path string) ([]*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiments file %s: %w", path, err)
	}
	var doc experimentsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse experiments file %s: %w", path, err)
	}
	return doc.Experiments, nil
}

// LoadDir walks dir recursively and registers every template and experiment
// into reg. Bad files are logged and skipped.
func LoadDir(reg *Registry, dir string, logger *slog.Logger) (LoadResult, error) {
	var (
		res       LoadResult
		expFiles  []string
		tmplFiles []string
	)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		if d.Name() == ExperimentsFile {
			expFiles = append(expFiles, path)
		} else {
			tmplFiles = append(tmplFiles, path)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk prompts dir %s: %w", dir, err)
	}

	for _, path := range tmplFiles {
		t, err := LoadTemplateFile(path)
		if err == nil {
			err = reg.Register(t)
		}
		if err != nil {
			logger.Warn("skipping prompt file", "file", path, "error", err)
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Err: err})
			continue
		}
		res.Templates++
	}

	for _, path := range expFiles {
		exps, err := LoadExperimentsFile(path)
		if err != nil {
			logger.Warn("skipping experiments file", "file", path, "error", err)
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Err: err})
			continue
		}
		for _, e := range exps {
			if err := reg.AddExperiment(e); err != nil {
				logger.Warn("skipping experiment", "file", path, "error", err)
				res.Skipped = append(res.Skipped, SkippedFile{Path: path, Err: err})
				continue
			}
			res.Experiments++
		}
	}

	logger.Info("prompts loaded",
		"dir", dir,
		"templates", res.Templates,
		"experiments", res.Experiments,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// CheckExperiments returns an error for every experiment variant whose
// version is not registered for promptID.
func CheckExperiments(reg *Registry, promptID string) []error {
	var errs []error
	for _, e := range reg.Experiments() {
		if len(e.Variants) == 0 || e.TotalTraffic() <= 0 {
			errs = append(errs, fmt.Errorf("experiment %s: %w", e.ID, ErrNoTraffic))
			continue
		}
		for _, v := range e.Variants {
			if _, err := reg.Get(promptID, v.Version); err != nil {
				errs = append(errs, fmt.Errorf("experiment %s variant %s: %w", e.ID, v.Name, err))
			}
		}
	}
	return errs
}
