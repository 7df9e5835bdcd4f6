// Package template loads declarative stack definitions from YAML. It is the
// thin front end the CLI uses; parameter resolution and intrinsic functions
// are out of scope and resolved before a definition reaches the engine.
package template

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

// StackDefinition is a parsed, validated stack template.
type StackDefinition struct {
	// Name is the stack name.
	Name string

	// DisableRollback disables the compensating run on create/update failure.
	DisableRollback bool

	// Resources are the resolved resource definitions, sorted by name.
	Resources []*engine.Definition
}

// stackFile is the YAML shape of a stack template.
type stackFile struct {
	Name            string                  `yaml:"name" validate:"required"`
	DisableRollback bool                    `yaml:"disable_rollback"`
	Resources       map[string]resourceFile `yaml:"resources" validate:"required,min=1,dive"`
}

// resourceFile is the YAML shape of one resource entry.
type resourceFile struct {
	Type           string         `yaml:"type" validate:"required"`
	Properties     map[string]any `yaml:"properties"`
	DependsOn      []string       `yaml:"depends_on"`
	Hooks          []string       `yaml:"hooks"`
	Timeout        string         `yaml:"timeout"`
	DisableUpdate  bool           `yaml:"disable_update"`
	DisableReplace bool           `yaml:"disable_replace"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses a stack template from a file.
func Load(path string) (*StackDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates a stack template.
func Parse(data []byte) (*StackDefinition, error) {
	var file stackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, engine.NewValidationError("malformed stack template", err).
			WithCode(engine.ErrCodeValidation)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, engine.NewValidationError("invalid stack template", err).
			WithCode(engine.ErrCodeValidation)
	}

	defs := make([]*engine.Definition, 0, len(file.Resources))
	for name, res := range file.Resources {
		def := &engine.Definition{
			Name:           name,
			Type:           res.Type,
			Properties:     engine.Properties(res.Properties),
			DependsOn:      res.DependsOn,
			Hooks:          res.Hooks,
			DisableUpdate:  res.DisableUpdate,
			DisableReplace: res.DisableReplace,
		}
		if res.Timeout != "" {
			timeout, err := time.ParseDuration(res.Timeout)
			if err != nil {
				return nil, engine.NewValidationError(
					fmt.Sprintf("invalid timeout for resource %s", name), err,
				).WithCode(engine.ErrCodeValidation).WithResource(name)
			}
			def.Timeout = timeout
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return &StackDefinition{
		Name:            file.Name,
		DisableRollback: file.DisableRollback,
		Resources:       defs,
	}, nil
}
