package plan

import (
	"fmt"
	"sort"
)

// Validator checks a built plan for dangling references: nodes whose
// prerequisites name ids absent from the plan. Build tolerates such
// references so callers can inspect and report them; execution must not
// proceed on an invalid plan.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every node's prerequisites against the plan's node set.
// Each dangling reference yields one error naming both the dependent node
// and the missing id.
func (v *Validator) Validate(p *ExecutionPlan) ValidationResult {
	if p == nil {
		return ValidationResult{Valid: false, Errors: []string{"plan is nil"}}
	}

	ids := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []string
	for _, id := range ids {
		for _, dep := range p.Nodes[id].DependsOn {
			if _, ok := p.Nodes[dep]; !ok {
				errs = append(errs, fmt.Sprintf(
					"change %q depends on %q, which is not part of the plan", id, dep))
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
