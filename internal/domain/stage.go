package domain

import (
	"errors"
	"fmt"
	"strings"
)

// StageSpec is the declarative half of a pipeline stage: what it is called,
// what it waits for, and which artifacts it reads and writes. The executable
// transform is attached by the pipeline package.
type StageSpec struct {
	Name      string
	DependsOn []string
	Consumes  []string
	Produces  []string

	// Transient marks stages whose failures may be caused by external
	// collaborators (network, object storage). Only transient stages are
	// retried, at most once.
	Transient bool
}

func (s StageSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("stage name is required")
	}
	seen := make(map[string]struct{}, len(s.DependsOn))
	for _, dep := range s.DependsOn {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			return fmt.Errorf("stage %q declares an empty dependency", s.Name)
		}
		if dep == s.Name {
			return fmt.Errorf("stage %q depends on itself", s.Name)
		}
		if _, ok := seen[dep]; ok {
			return fmt.Errorf("stage %q declares dependency %q twice", s.Name, dep)
		}
		seen[dep] = struct{}{}
	}
	for _, name := range s.Consumes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("stage %q declares an empty input artifact", s.Name)
		}
	}
	for _, name := range s.Produces {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("stage %q declares an empty output artifact", s.Name)
		}
	}
	return nil
}

// MaxAttempts returns the attempt budget for the stage under the
// one-retry-for-transient policy.
func (s StageSpec) MaxAttempts() int {
	if s.Transient {
		return 2
	}
	return 1
}
