package template

import (
	"fmt"

	"github.com/openwind/approvalflow/internal/domain/workflow"
)

// validateSpecs checks that authored nodes form a single acyclic chain with
// exactly one entry node and one terminal node, each node carrying at least
// one participant, and returns them in traversal order.
func validateSpecs(specs []NodeSpec) ([]NodeSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one node is required", workflow.ErrInvalidTemplateShape)
	}

	byKey := make(map[string]NodeSpec, len(specs))
	hasIncoming := make(map[string]bool, len(specs))
	terminals := 0

	for _, spec := range specs {
		if spec.Key == "" {
			return nil, fmt.Errorf("%w: node key is required", workflow.ErrInvalidTemplateShape)
		}
		if _, dup := byKey[spec.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate node key %q", workflow.ErrInvalidTemplateShape, spec.Key)
		}
		if len(spec.Operators) == 0 {
			return nil, fmt.Errorf("%w: node %q has no participants", workflow.ErrInvalidTemplateShape, spec.Key)
		}
		if !spec.RejectOperation.IsValid() {
			return nil, fmt.Errorf("%w: node %q has unknown reject operation %d",
				workflow.ErrInvalidTemplateShape, spec.Key, spec.RejectOperation)
		}
		byKey[spec.Key] = spec
		if spec.NextKey == nil {
			terminals++
		}
	}

	if terminals != 1 {
		return nil, fmt.Errorf("%w: expected exactly one terminal node, found %d",
			workflow.ErrInvalidTemplateShape, terminals)
	}

	for _, spec := range specs {
		if spec.NextKey == nil {
			continue
		}
		if *spec.NextKey == spec.Key {
			return nil, fmt.Errorf("%w: node %q references itself", workflow.ErrInvalidTemplateShape, spec.Key)
		}
		if _, ok := byKey[*spec.NextKey]; !ok {
			return nil, fmt.Errorf("%w: node %q references unknown node %q",
				workflow.ErrInvalidTemplateShape, spec.Key, *spec.NextKey)
		}
		if hasIncoming[*spec.NextKey] {
			return nil, fmt.Errorf("%w: node %q has multiple predecessors",
				workflow.ErrInvalidTemplateShape, *spec.NextKey)
		}
		hasIncoming[*spec.NextKey] = true
	}

	var entryKey string
	entries := 0
	for _, spec := range specs {
		if !hasIncoming[spec.Key] {
			entryKey = spec.Key
			entries++
		}
	}
	if entries != 1 {
		return nil, fmt.Errorf("%w: expected exactly one entry node, found %d",
			workflow.ErrInvalidTemplateShape, entries)
	}

	ordered := make([]NodeSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	key := entryKey
	for {
		if seen[key] {
			return nil, fmt.Errorf("%w: cycle at node %q", workflow.ErrInvalidTemplateShape, key)
		}
		seen[key] = true
		spec := byKey[key]
		ordered = append(ordered, spec)
		if spec.NextKey == nil {
			break
		}
		key = *spec.NextKey
	}

	if len(ordered) != len(specs) {
		return nil, fmt.Errorf("%w: %d node(s) unreachable from entry",
			workflow.ErrInvalidTemplateShape, len(specs)-len(ordered))
	}
	return ordered, nil
}
