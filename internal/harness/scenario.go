package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/saifalharthi/materialize/internal/expr"
)

// Scenario defines a conformance test scenario: a catalog, a sequence of
// steps driving the engine, and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a directory of CUE files declaring the dataflows.
	// Relative paths are resolved against the scenario file location.
	Catalog string `yaml:"catalog,omitempty"`

	// CUE declares the dataflows inline. Exactly one of Catalog and CUE
	// is set.
	CUE string `yaml:"cue,omitempty"`

	// Steps run in order; each completes before the next starts.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: rows, row_count, watermark, frontier, rejected
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one action against the engine. Exactly one of Feed, Parallel,
// Peek, Tail and Recv is set.
type Step struct {
	// Feed names a source to send Updates and then Watermark to.
	Feed      string       `yaml:"feed,omitempty"`
	Updates   []UpdateSpec `yaml:"updates,omitempty"`
	Watermark *uint64      `yaml:"watermark,omitempty"`

	// Parallel holds feed steps submitted concurrently. Feeds for one
	// source within a group keep no relative order.
	Parallel []Step `yaml:"parallel,omitempty"`

	// Peek names a view to read. When is "immediately", "earliest_source"
	// or a timestamp; OrderBy, Limit and Offset finish the result.
	Peek    string             `yaml:"peek,omitempty"`
	When    string             `yaml:"when,omitempty"`
	OrderBy []expr.ColumnOrder `yaml:"order_by,omitempty"`
	Limit   *int               `yaml:"limit,omitempty"`
	Offset  int                `yaml:"offset,omitempty"`

	// Tail opens a tail sink with this name reading From as of Since.
	Tail  string `yaml:"tail,omitempty"`
	From  string `yaml:"from,omitempty"`
	Since uint64 `yaml:"since,omitempty"`

	// Recv receives the next batch from the named tail.
	Recv string `yaml:"recv,omitempty"`

	// Expect validates the step's outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// UpdateSpec is an update written in a scenario. Diff defaults to +1.
type UpdateSpec struct {
	Row  []any  `yaml:"row"`
	Time uint64 `yaml:"time"`
	Diff int64  `yaml:"diff,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. LATE_UPDATE or NOT_READY.
	Error string `yaml:"error,omitempty"`

	// Rows are the expected peek rows. Order matters only when the peek
	// sets order_by.
	Rows [][]any `yaml:"rows,omitempty"`

	// Updates are the expected contents of a received tail batch, in
	// delivery order.
	Updates []UpdateSpec `yaml:"updates,omitempty"`

	// Timestamp is the timestamp the peek is expected to read at.
	Timestamp *uint64 `yaml:"timestamp,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "rows": View as of At contains exactly Rows (multiset)
	// - "row_count": View as of At has Count rows
	// - "watermark": Source's watermark equals Value
	// - "frontier": View's frontier has exactly Elements
	// - "rejected": the engine rejected Count events in total
	Type string `yaml:"type"`

	View     string   `yaml:"view,omitempty"`
	Source   string   `yaml:"source,omitempty"`
	At       uint64   `yaml:"at,omitempty"`
	Rows     [][]any  `yaml:"rows,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Value    uint64   `yaml:"value,omitempty"`
	Elements []uint64 `yaml:"elements,omitempty"`
}

// Assertion type constants.
const (
	AssertRows      = "rows"
	AssertRowCount  = "row_count"
	AssertWatermark = "watermark"
	AssertFrontier  = "frontier"
	AssertRejected  = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative catalog path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Catalog != "" {
		if _, err := os.Stat(scenario.Catalog); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: catalog not found: %s", scenario.Catalog)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Catalog paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if (s.Catalog == "") == (s.CUE == "") {
		return fmt.Errorf("exactly one of catalog and cue is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// stepKind names the action a step performs, or "" if it sets more or
// fewer than one.
func stepKind(s Step) string {
	kind := ""
	for k, set := range map[string]bool{
		"feed":     s.Feed != "",
		"parallel": len(s.Parallel) > 0,
		"peek":     s.Peek != "",
		"tail":     s.Tail != "",
		"recv":     s.Recv != "",
	} {
		if !set {
			continue
		}
		if kind != "" {
			return ""
		}
		kind = k
	}
	return kind
}

func validateStep(where string, s Step) error {
	switch stepKind(s) {
	case "":
		return fmt.Errorf("%s: exactly one of feed, parallel, peek, tail and recv is required", where)
	case "feed":
		if len(s.Updates) == 0 && s.Watermark == nil {
			return fmt.Errorf("%s: feed needs updates or a watermark", where)
		}
	case "parallel":
		for i, sub := range s.Parallel {
			if stepKind(sub) != "feed" {
				return fmt.Errorf("%s.parallel[%d]: only feed steps run in parallel", where, i)
			}
			if err := validateStep(fmt.Sprintf("%s.parallel[%d]", where, i), sub); err != nil {
				return err
			}
		}
	case "tail":
		if s.From == "" {
			return fmt.Errorf("%s: tail needs from", where)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRows, AssertRowCount, AssertFrontier:
		if a.View == "" {
			return fmt.Errorf("assertions[%d]: view is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertWatermark:
		if a.Source == "" {
			return fmt.Errorf("assertions[%d]: source is required for watermark", index)
		}
	case AssertRejected:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
