package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a malformed pipeline definition. Configuration errors
// are fatal and rejected before a run starts.
type ConfigError struct {
	StepID  string
	Message string
}

func (e *ConfigError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("pipeline config error in step %q: %s", e.StepID, e.Message)
	}
	return fmt.Sprintf("pipeline config error: %s", e.Message)
}

// LoadPipeline reads and validates a pipeline definition from a YAML file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	if err := Validate(p.Steps); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks a step list for configuration errors: empty lists, unknown
// kinds, missing prompt bindings, and route references no decision step can
// produce.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return &ConfigError{Message: "step list is empty"}
	}

	// Routes a run can reach: the ROOT sentinel plus every decision step's
	// yes/no target.
	known := map[string]bool{RouteRoot: true}
	for _, s := range steps {
		if s.Kind == KindDecision {
			if s.YesKey != "" {
				known[s.YesKey] = true
			}
			if s.NoKey != "" {
				known[s.NoKey] = true
			}
			for _, r := range s.Routes {
				known[r] = true
			}
		}
	}

	seen := make(map[string]bool)
	for _, s := range steps {
		if s.ID == "" {
			return &ConfigError{Message: "step is missing an id"}
		}
		if seen[s.ID] {
			return &ConfigError{StepID: s.ID, Message: "duplicate step id"}
		}
		seen[s.ID] = true

		switch s.Kind {
		case KindExtraction:
			if s.JSONKey == "" {
				return &ConfigError{StepID: s.ID, Message: "extraction step requires json_key"}
			}
		case KindScoring:
		case KindDecision:
			if (s.YesKey == "") != (s.NoKey == "") {
				return &ConfigError{StepID: s.ID, Message: "decision step must set both yes_key and no_key, or neither"}
			}
		default:
			return &ConfigError{StepID: s.ID, Message: fmt.Sprintf("unknown step kind %q", s.Kind)}
		}

		if s.PromptID == "" {
			return &ConfigError{StepID: s.ID, Message: "step requires prompt_id"}
		}
		if s.Route != "" && !known[s.Route] {
			return &ConfigError{StepID: s.ID, Message: fmt.Sprintf("route %q matches no known route", s.Route)}
		}
	}
	return nil
}
