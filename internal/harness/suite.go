package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Path   string
	Name   string
	Result *Result
	Err    error // set when the scenario could not be loaded or executed
}

// Passed reports whether the scenario ran and all its checks passed.
func (o ScenarioOutcome) Passed() bool {
	return o.Err == nil && o.Result != nil && o.Result.Pass
}

// SuiteResult aggregates the outcomes of a directory of scenarios.
type SuiteResult struct {
	Outcomes []ScenarioOutcome
	Passed   int
	Failed   int
}

// OK reports whether every scenario passed.
func (s *SuiteResult) OK() bool {
	return s.Failed == 0
}

// FindScenarios returns the .yaml and .yml files directly under dir,
// sorted by name. A path naming a file is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// RunDir runs every scenario found by FindScenarios.
func RunDir(ctx context.Context, path string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", path)
	}
	return RunFiles(ctx, files), nil
}

// RunFiles runs the scenario files in order. Scenarios run one at a time,
// each against its own engine. A file that fails to load counts as a
// failed scenario.
func RunFiles(ctx context.Context, files []string) *SuiteResult {
	suite := &SuiteResult{}
	for _, file := range files {
		outcome := ScenarioOutcome{Path: file}
		scenario, err := LoadScenario(file)
		if err == nil {
			outcome.Name = scenario.Name
			outcome.Result, err = RunContext(ctx, scenario)
		}
		outcome.Err = err
		if outcome.Passed() {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Outcomes = append(suite.Outcomes, outcome)
	}
	return suite
}
