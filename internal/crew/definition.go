package crew

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Definition describes a crew in YAML or JSON.
type Definition struct {
	Process Process           `yaml:"process" json:"process"`
	Memory  *bool             `yaml:"memory,omitempty" json:"memory,omitempty"`
	Verbose bool              `yaml:"verbose" json:"verbose"`
	Agents  []AgentDefinition `yaml:"agents" json:"agents"`
	Tasks   []TaskDefinition  `yaml:"tasks" json:"tasks"`
}

// AgentDefinition declares an agent referenced by tasks under Name.
type AgentDefinition struct {
	Name      string   `yaml:"name" json:"name"`
	Role      string   `yaml:"role" json:"role"`
	Goal      string   `yaml:"goal" json:"goal"`
	Backstory string   `yaml:"backstory,omitempty" json:"backstory,omitempty"`
	Model     string   `yaml:"model,omitempty" json:"model,omitempty"`
	Tools     []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// TaskDefinition declares one work item.
type TaskDefinition struct {
	Description    string   `yaml:"description" json:"description"`
	Agent          string   `yaml:"agent" json:"agent"`
	ExpectedOutput string   `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	Context        []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Binding supplies the collaborators a built crew uses.
type Binding struct {
	Models   ModelManager
	Memory   MemoryLogger
	Tools    map[string]*Tool
	Observer Observer
	Logger   *zap.Logger
}

// ParseDefinition decodes a YAML or JSON definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse crew definition: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads a definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crew definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// Build constructs a fresh crew. Each call returns new agents and items.
func (d *Definition) Build(b Binding) (*Crew, error) {
	if len(d.Tasks) == 0 {
		return nil, fmt.Errorf("crew definition has no tasks")
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	agents := make(map[string]*Agent, len(d.Agents))
	for _, ad := range d.Agents {
		if ad.Role == "" {
			return nil, fmt.Errorf("agent %q has no role", ad.Name)
		}
		key := ad.Name
		if key == "" {
			key = ad.Role
		}
		if _, dup := agents[key]; dup {
			return nil, fmt.Errorf("duplicate agent %q", key)
		}

		opts := []AgentOption{WithBackstory(ad.Backstory), WithVerboseAgent(d.Verbose)}
		for _, name := range ad.Tools {
			t, ok := b.Tools[name]
			if !ok {
				return nil, fmt.Errorf("agent %q: unknown tool %q", key, name)
			}
			opts = append(opts, WithTools(t))
		}
		if b.Models != nil {
			opts = append(opts, WithModels(b.Models, ad.Model))
		}
		if b.Memory != nil {
			opts = append(opts, WithMemoryLogger(b.Memory))
		}
		agents[key] = NewAgent(ad.Role, ad.Goal, logger, opts...)
	}

	items := make([]*WorkItem, 0, len(d.Tasks))
	for i, td := range d.Tasks {
		a, ok := agents[td.Agent]
		if !ok {
			return nil, fmt.Errorf("task %d: unknown agent %q", i, td.Agent)
		}
		it := NewWorkItem(td.Description, a, td.Context...)
		it.ExpectedOutput = td.ExpectedOutput
		items = append(items, it)
	}

	opts := []Option{WithVerbose(d.Verbose), WithLogger(logger), WithObserver(b.Observer)}
	if d.Process != "" {
		opts = append(opts, WithProcess(d.Process))
	}
	if d.Memory != nil {
		opts = append(opts, WithMemory(*d.Memory))
	}
	return New(items, opts...), nil
}
