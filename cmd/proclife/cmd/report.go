//go:build linux

package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jrepp/proclife/pkg/process"
	"github.com/jrepp/proclife/pkg/scenarios"
)

// runReport is the YAML document written by run --report
type runReport struct {
	Scenario      string        `yaml:"scenario"`
	RunID         string        `yaml:"run_id"`
	Deterministic bool          `yaml:"deterministic"`
	Children      []childReport `yaml:"children"`
}

type childReport struct {
	Entry    string `yaml:"entry"`
	Pid      int    `yaml:"pid"`
	Status   string `yaml:"status"`
	ExitCode *int   `yaml:"exit_code,omitempty"`
	Signal   string `yaml:"signal,omitempty"`
	Lifetime string `yaml:"lifetime"`
}

func newRunReport(s scenarios.Scenario, runID string, reports []process.ExitReport) runReport {
	r := runReport{
		Scenario:      s.Name,
		RunID:         runID,
		Deterministic: s.Deterministic,
		Children:      make([]childReport, 0, len(reports)),
	}

	for _, er := range reports {
		c := childReport{
			Entry:    er.Entry,
			Pid:      er.Handle.Pid(),
			Status:   er.Status.String(),
			Lifetime: er.Lifetime.String(),
		}
		if er.Status.Exited {
			code := er.Status.Code
			c.ExitCode = &code
		}
		if er.Status.Signaled {
			c.Signal = er.Status.Signal.String()
		}
		r.Children = append(r.Children, c)
	}
	return r
}

func writeReport(path string, r runReport) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
