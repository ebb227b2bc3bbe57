// Package plan turns the declared stage collection into a validated,
// deterministically ordered execution plan. Planning happens before any
// stage runs; a malformed graph never produces artifacts.
package plan

import (
	"fmt"
	"sort"

	"github.com/meridian-labs/meridian-go/internal/domain"
)

// Plan is the ordered execution schedule derived from the declared stages.
// Deps holds the effective upstream set per stage, combining explicit
// dependency declarations with the producer->consumer artifact relation.
type Plan struct {
	Ordered []domain.StageSpec
	Deps    map[string][]string
}

// StageNames returns the scheduled stage names in execution order.
func (p Plan) StageNames() []string {
	out := make([]string, 0, len(p.Ordered))
	for _, spec := range p.Ordered {
		out = append(out, spec.Name)
	}
	return out
}

// Build validates the stage collection and computes a topological order.
// Ties are broken alphabetically so the schedule is stable across runs.
func Build(specs []domain.StageSpec) (Plan, error) {
	if len(specs) == 0 {
		return Plan{}, fmt.Errorf("at least one stage is required")
	}

	byName := make(map[string]domain.StageSpec, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return Plan{}, err
		}
		if _, ok := byName[spec.Name]; ok {
			return Plan{}, fmt.Errorf("stage %q is declared twice", spec.Name)
		}
		byName[spec.Name] = spec
	}

	producers := make(map[string]string)
	for _, spec := range specs {
		for _, artifact := range spec.Produces {
			if owner, ok := producers[artifact]; ok {
				return Plan{}, fmt.Errorf("artifact %q is produced by both %q and %q", artifact, owner, spec.Name)
			}
			producers[artifact] = spec.Name
		}
	}

	// Edges come from explicit DependsOn declarations plus the implicit
	// producer->consumer relation between artifacts.
	edges := make(map[string]map[string]struct{}, len(byName))
	addEdge := func(from, to string) {
		if edges[from] == nil {
			edges[from] = make(map[string]struct{})
		}
		edges[from][to] = struct{}{}
	}
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, ok := byName[dep]; !ok {
				return Plan{}, fmt.Errorf("stage %q depends on unknown stage %q", spec.Name, dep)
			}
			addEdge(dep, spec.Name)
		}
		for _, input := range spec.Consumes {
			producer, ok := producers[input]
			if !ok {
				return Plan{}, fmt.Errorf("stage %q consumes artifact %q that no stage produces", spec.Name, input)
			}
			if producer == spec.Name {
				return Plan{}, fmt.Errorf("stage %q consumes its own output %q", spec.Name, input)
			}
			addEdge(producer, spec.Name)
		}
	}

	inDegree := make(map[string]int, len(byName))
	adj := make(map[string][]string, len(byName))
	for name := range byName {
		inDegree[name] = 0
	}
	for from, targets := range edges {
		for to := range targets {
			adj[from] = append(adj[from], to)
			inDegree[to]++
		}
	}

	ready := make([]string, 0, len(byName))
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]domain.StageSpec, 0, len(byName))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])
		for _, dependent := range adj[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
				sort.Strings(ready)
			}
		}
	}

	if len(ordered) != len(byName) {
		return Plan{}, domain.ErrGraphCycle
	}

	deps := make(map[string][]string, len(byName))
	for from, targets := range edges {
		for to := range targets {
			deps[to] = append(deps[to], from)
		}
	}
	for to := range deps {
		sort.Strings(deps[to])
	}
	return Plan{Ordered: ordered, Deps: deps}, nil
}
