package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"course-agenda-server/internal/schedule"
)

// BusinessHours resolves the working window for a project. The file form is:
//
//	default:
//	  start_hour: 8
//	  end_hour: 18
//	  granularity_minutes: 60
//	projects:
//	  project-42:
//	    extended: true
type BusinessHours struct {
	Default  schedule.SlotOptions            `yaml:"default"`
	Projects map[string]schedule.SlotOptions `yaml:"projects"`
}

// LoadBusinessHours reads path on top of fallback. An empty path or a
// missing file yields fallback for every project.
func LoadBusinessHours(path string, fallback schedule.SlotOptions) (*BusinessHours, error) {
	hours := &BusinessHours{Default: fallback, Projects: map[string]schedule.SlotOptions{}}
	if path == "" {
		return hours, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return hours, nil
		}
		return nil, fmt.Errorf("read business hours file: %w", err)
	}

	return ParseBusinessHours(data, fallback)
}

func ParseBusinessHours(data []byte, fallback schedule.SlotOptions) (*BusinessHours, error) {
	var parsed BusinessHours
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse business hours file: %w", err)
	}

	def, err := fallback.Merge(parsed.Default).Normalize()
	if err != nil {
		return nil, fmt.Errorf("business hours default: %w", err)
	}

	hours := &BusinessHours{
		Default:  def,
		Projects: make(map[string]schedule.SlotOptions, len(parsed.Projects)),
	}
	for id, opts := range parsed.Projects {
		merged, err := def.Merge(opts).Normalize()
		if err != nil {
			return nil, fmt.Errorf("business hours for project %s: %w", id, err)
		}
		hours.Projects[id] = merged
	}
	return hours, nil
}

// For returns the window configured for projectID.
func (b *BusinessHours) For(projectID string) schedule.SlotOptions {
	if b == nil {
		return schedule.SlotOptions{}
	}
	if opts, ok := b.Projects[projectID]; ok {
		return opts
	}
	return b.Default
}
