package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sportorg/internal/model"
)

// Scenario is one race scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Event is the CUE event directory, relative to the scenario file.
	Event string `yaml:"event"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one thing that happens during the race. Exactly one field is set.
type Step struct {
	Register    *CompetitorArgs `yaml:"register,omitempty"`
	Update      *CompetitorArgs `yaml:"update,omitempty"`
	Punch       *PunchArgs      `yaml:"punch,omitempty"`
	Advance     string          `yaml:"advance,omitempty"` // wall clock, e.g. "2s"; runs a tick
	SetStatus   *StatusArgs     `yaml:"set_status,omitempty"`
	ClearStatus string          `yaml:"clear_status,omitempty"`
	Retract     *PunchArgs      `yaml:"retract,omitempty"`
	Close       bool            `yaml:"close,omitempty"`

	// ExpectError is the runtime error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CompetitorArgs registers or corrects a competitor.
type CompetitorArgs struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Class  string `yaml:"class"`
	Card   string `yaml:"card"`
	Course string `yaml:"course,omitempty"`
	Bib    int    `yaml:"bib,omitempty"`
	Start  string `yaml:"start,omitempty"`
}

func (a CompetitorArgs) competitor() (model.Competitor, error) {
	c := model.Competitor{
		ID:       a.ID,
		Name:     a.Name,
		ClassID:  a.Class,
		CardID:   a.Card,
		CourseID: a.Course,
		Bib:      a.Bib,
	}
	if c.Name == "" {
		c.Name = "Runner " + a.ID
	}
	if a.Start != "" {
		start, err := model.ParseTime(a.Start)
		if err != nil {
			return model.Competitor{}, fmt.Errorf("competitor %s start: %w", a.ID, err)
		}
		c.StartTime = start
	}
	return c, nil
}

// PunchArgs is a punch as a reader reports it. Source defaults to "r1".
type PunchArgs struct {
	Card   string `yaml:"card"`
	Code   string `yaml:"code"`
	Time   string `yaml:"time"`
	Source string `yaml:"source,omitempty"`
	Reason string `yaml:"reason,omitempty"` // retractions only
}

// StatusArgs sets an administrative override.
type StatusArgs struct {
	Competitor string `yaml:"competitor"`
	Status     string `yaml:"status"`
	Reason     string `yaml:"reason"`
}

func (s Step) action() string {
	var set []string
	if s.Register != nil {
		set = append(set, "register")
	}
	if s.Update != nil {
		set = append(set, "update")
	}
	if s.Punch != nil {
		set = append(set, "punch")
	}
	if s.Advance != "" {
		set = append(set, "advance")
	}
	if s.SetStatus != nil {
		set = append(set, "set_status")
	}
	if s.ClearStatus != "" {
		set = append(set, "clear_status")
	}
	if s.Retract != nil {
		set = append(set, "retract")
	}
	if s.Close {
		set = append(set, "close")
	}
	if len(set) != 1 {
		return ""
	}
	return set[0]
}

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// fail loudly. The event path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sc.Event != "" && !filepath.IsAbs(sc.Event) {
		sc.Event = filepath.Join(filepath.Dir(path), sc.Event)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Event == "" {
		return fmt.Errorf("event is required")
	}
	if _, err := os.Stat(s.Event); err != nil {
		return fmt.Errorf("event directory: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.action() == "" {
			return fmt.Errorf("steps[%d]: exactly one action is required", i)
		}
		if p := step.Punch; p != nil && (p.Card == "" || p.Code == "" || p.Time == "") {
			return fmt.Errorf("steps[%d]: punch needs card, code and time", i)
		}
		if r := step.Retract; r != nil && r.Reason == "" {
			return fmt.Errorf("steps[%d]: retract needs a reason", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}
