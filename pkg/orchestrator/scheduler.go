package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// refPrefix marks an argument value as a reference to an earlier
// step's output.
const refPrefix = "$ref:"

// parseRef splits a reference value into its step ID and optional
// field name. ok is false when the value is not a reference.
func parseRef(value interface{}) (stepID, field string, ok bool) {
	s, isString := value.(string)
	if !isString || !strings.HasPrefix(s, refPrefix) {
		return "", "", false
	}
	target := strings.TrimPrefix(s, refPrefix)
	if target == "" {
		return "", "", false
	}
	if i := strings.IndexByte(target, '.'); i >= 0 {
		return target[:i], target[i+1:], true
	}
	return target, "", true
}

// stepDependencies returns the union of a step's declared dependencies
// and the steps its args reference, deduplicated and sorted.
func stepDependencies(step Step) []string {
	seen := make(map[string]bool)
	for _, dep := range step.DependsOn {
		seen[dep] = true
	}
	for _, value := range step.Args {
		if target, _, ok := parseRef(value); ok {
			seen[target] = true
		}
	}
	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// computeLayers groups a plan's steps into execution layers: a step's
// layer is one past the deepest layer of its dependencies, so every
// layer depends only on layers before it. Steps within a layer are
// ordered by ID, which makes the layering a pure function of the plan.
func computeLayers(plan *Plan) ([][]string, error) {
	deps := make(map[string][]string, len(plan.Steps))
	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(plan.Steps))

	for _, step := range plan.Steps {
		stepDeps := stepDependencies(step)
		deps[step.ID] = stepDeps
		inDegree[step.ID] = len(stepDeps)
		for _, dep := range stepDeps {
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	ready := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if inDegree[step.ID] == 0 {
			ready = append(ready, step.ID)
		}
	}

	var layers [][]string
	placed := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		layer := make([]string, len(ready))
		copy(layer, ready)
		layers = append(layers, layer)
		placed += len(layer)

		next := []string{}
		for _, id := range layer {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		ready = next
	}

	if placed != len(plan.Steps) {
		stuck := make([]string, 0)
		for id, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving steps: %s", strings.Join(stuck, ", "))
	}

	return layers, nil
}

// resolveArgs substitutes every reference in args with the
// corresponding output from completed steps. A reference to a missing
// step or field is an error.
func resolveArgs(args map[string]interface{}, outputs map[string]map[string]interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return args, nil
	}
	resolved := make(map[string]interface{}, len(args))
	for key, value := range args {
		target, field, ok := parseRef(value)
		if !ok {
			resolved[key] = value
			continue
		}
		output, found := outputs[target]
		if !found {
			return nil, fmt.Errorf("arg %q references step %q which has no output", key, target)
		}
		if field == "" {
			resolved[key] = output
			continue
		}
		fieldValue, found := output[field]
		if !found {
			return nil, fmt.Errorf("arg %q references missing field %q of step %q", key, field, target)
		}
		resolved[key] = fieldValue
	}
	return resolved, nil
}
