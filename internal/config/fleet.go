package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// FleetToolPolicy mirrors runtime.ToolPolicy in a YAML-friendly shape.
type FleetToolPolicy struct {
	ToolName         string   `yaml:"tool_name"`
	Permission       string   `yaml:"permission"` // denied|read_only|read_write|full
	MaxCallsPerHour  *uint32  `yaml:"max_calls_per_hour,omitempty"`
	AllowedPaths     []string `yaml:"allowed_paths,omitempty"`
}

// FleetAgent describes one statically-configured agent.
type FleetAgent struct {
	Name          string            `yaml:"name"`
	Role          string            `yaml:"role"` // coordinator|worker|reviewer|<custom>
	ConnectorKind string            `yaml:"connector_kind"`
	MaxRetries    uint32            `yaml:"max_retries,omitempty"`
	TimeoutMS     uint64            `yaml:"timeout_ms,omitempty"`
	ToolPolicies  []FleetToolPolicy `yaml:"tool_policies,omitempty"`
}

// FleetLoopGuard optionally overrides runtime.LoopGuard defaults.
type FleetLoopGuard struct {
	MaxIterations        *uint64 `yaml:"max_iterations,omitempty"`
	MaxMessagesPerAgent  *uint64 `yaml:"max_messages_per_agent,omitempty"`
	MaxExecutionTimeMS   *uint64 `yaml:"max_execution_time_ms,omitempty"`
}

// Fleet is the full YAML topology file: the set of agents a process boots
// with, plus optional loop-guard overrides.
type Fleet struct {
	Agents    []FleetAgent   `yaml:"agents"`
	LoopGuard FleetLoopGuard `yaml:"loop_guard,omitempty"`
}

// LoadFleet reads and validates the agent fleet topology file. A missing
// file is not an error: callers get an empty Fleet and may register agents
// programmatically instead.
func LoadFleet(path string) (Fleet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		pterm.Info.Printfln("fleet file %q not found, starting with no preconfigured agents", path)
		return Fleet{}, nil
	}
	if err != nil {
		pterm.Error.Printfln("reading fleet file %q: %v", path, err)
		return Fleet{}, fmt.Errorf("reading fleet file: %w", err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		pterm.Error.Printfln("parsing fleet file %q: %v", path, err)
		return Fleet{}, fmt.Errorf("parsing fleet file: %w", err)
	}

	for i := range fleet.Agents {
		a := &fleet.Agents[i]
		if a.Name == "" {
			return Fleet{}, fmt.Errorf("fleet agent at index %d missing name", i)
		}
		if a.Role == "" {
			a.Role = "worker"
		}
		if a.MaxRetries == 0 {
			a.MaxRetries = 3
		}
		if a.TimeoutMS == 0 {
			a.TimeoutMS = 300000
		}
	}

	pterm.Success.Printfln("loaded fleet of %d agent(s) from %q", len(fleet.Agents), path)
	return fleet, nil
}
