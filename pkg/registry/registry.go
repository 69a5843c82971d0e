// Package registry loads immutable exercise definitions from a
// declarative YAML file. Grounded on
// original_source/services/exercise/src/exercise/exercise_registry.py,
// with the load-once/validate/list shape taken from the teacher's
// internal/config.Load (MiFaceDEV/miface).
package registry

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FormCheck is a named inequality on a joint angle.
type FormCheck struct {
	Name         string
	Joint        [3]int
	MinAngle     float64
	MaxAngle     float64
	AlertKey     string
	AlertMessage string
	Severity     string
}

// ExerciseDefinition is the immutable, process-wide description of one
// exercise: its primary joint (used by the rep counter), its UP/DOWN
// angle thresholds, and its form checks.
type ExerciseDefinition struct {
	Name         string
	PrimaryJoint [3]int
	UpAngle      float64
	DownAngle    float64
	FormChecks   []FormCheck
}

// yamlFile mirrors the declarative document shape (see config/exercises.yaml).
type yamlFile struct {
	Exercises map[string]yamlExercise `yaml:"exercises"`
}

type yamlExercise struct {
	Name         string          `yaml:"name"`
	PrimaryJoint [3]int          `yaml:"primary_joint"`
	UpAngle      float64         `yaml:"up_angle"`
	DownAngle    float64         `yaml:"down_angle"`
	FormChecks   []yamlFormCheck `yaml:"form_checks"`
}

type yamlFormCheck struct {
	Name         string  `yaml:"name"`
	Joint        [3]int  `yaml:"joint"`
	MinAngle     float64 `yaml:"min_angle"`
	MaxAngle     float64 `yaml:"max_angle"`
	AlertKey     string  `yaml:"alert_key"`
	AlertMessage string  `yaml:"alert_message"`
	Severity     string  `yaml:"severity"`
}

// Registry is an immutable, read-only mapping from exercise key to
// definition, loaded once at startup and shared by reference across
// every pipeline in the process.
type Registry struct {
	byKey map[string]ExerciseDefinition
	keys  []string // preserves YAML load order
}

// Load reads and parses the exercise-definition file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exercise definitions: %w", err)
	}

	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing exercise definitions: %w", err)
	}

	r := &Registry{byKey: make(map[string]ExerciseDefinition, len(doc.Exercises))}

	// yaml.Unmarshal into a map does not preserve key order; decode the
	// raw node sequence instead so List() matches the file's order.
	var raw yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing exercise definitions: %w", err)
	}
	order := exerciseKeyOrder(&raw)
	if len(order) == 0 {
		for k := range doc.Exercises {
			order = append(order, k)
		}
	}

	for _, key := range order {
		entry, ok := doc.Exercises[key]
		if !ok {
			continue
		}
		checks := make([]FormCheck, 0, len(entry.FormChecks))
		for _, c := range entry.FormChecks {
			severity := c.Severity
			if severity == "" {
				severity = "warning"
			}
			checks = append(checks, FormCheck{
				Name:         c.Name,
				Joint:        c.Joint,
				MinAngle:     c.MinAngle,
				MaxAngle:     c.MaxAngle,
				AlertKey:     c.AlertKey,
				AlertMessage: c.AlertMessage,
				Severity:     severity,
			})
		}
		r.byKey[key] = ExerciseDefinition{
			Name:         entry.Name,
			PrimaryJoint: entry.PrimaryJoint,
			UpAngle:      entry.UpAngle,
			DownAngle:    entry.DownAngle,
			FormChecks:   checks,
		}
		r.keys = append(r.keys, key)
	}

	log.Info().Strs("exercises", r.keys).Msg("exercise_registry_loaded")
	return r, nil
}

// exerciseKeyOrder walks the "exercises" mapping node of the parsed YAML
// document to recover its on-disk key order.
func exerciseKeyOrder(root *yaml.Node) []string {
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "exercises" {
			mapping := doc.Content[i+1]
			var keys []string
			for j := 0; j+1 < len(mapping.Content); j += 2 {
				keys = append(keys, mapping.Content[j].Value)
			}
			return keys
		}
	}
	return nil
}

// ErrUnknownExercise is returned by Get for an unregistered key.
type ErrUnknownExercise struct {
	Key       string
	Available []string
}

func (e *ErrUnknownExercise) Error() string {
	return fmt.Sprintf("unknown exercise %q (available: %v)", e.Key, e.Available)
}

// Get returns the definition registered under key.
func (r *Registry) Get(key string) (ExerciseDefinition, error) {
	def, ok := r.byKey[key]
	if !ok {
		return ExerciseDefinition{}, &ErrUnknownExercise{Key: key, Available: r.keys}
	}
	return def, nil
}

// List returns the registered exercise keys in load order.
func (r *Registry) List() []string {
	return append([]string(nil), r.keys...)
}
