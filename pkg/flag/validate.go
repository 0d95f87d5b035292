package flag

import (
	"errors"
	"fmt"
	"math"
	"regexp"
)

const weightTolerance = 0.01

// Validate checks a definition for authoring-time mistakes: bad key
// characters, type mismatches, duplicate rule ids, malformed rollouts and
// experiments, and condition/value incompatibilities. Evaluation never
// validates; only validated definitions reach it.
func Validate(d *Definition) error {
	if d == nil {
		return errors.Join(ErrValidation, errors.New("definition is nil"))
	}
	if _, err := NewID(string(d.ID)); err != nil {
		return errors.Join(ErrValidation, err)
	}
	if !d.Type.Valid() || d.Type == KindNull || d.Type == KindVariant {
		return errors.Join(ErrValidation, fmt.Errorf("unsupported flag type %q", d.Type))
	}
	if !d.Status.Valid() {
		return errors.Join(ErrValidation, fmt.Errorf("unknown status %q", d.Status))
	}
	if d.Default.Kind() != d.Type {
		return errors.Join(ErrValidation,
			fmt.Errorf("default value kind %q does not match flag type %q", d.Default.Kind(), d.Type))
	}

	seen := make(map[string]struct{}, len(d.Rules))
	for _, r := range d.Rules {
		if r.ID == "" {
			return errors.Join(ErrValidation, errors.New("rule id is empty"))
		}
		if _, dup := seen[r.ID]; dup {
			return errors.Join(ErrValidation, fmt.Errorf("duplicate rule id %q", r.ID))
		}
		seen[r.ID] = struct{}{}
		if r.Value.Kind() != d.Type {
			return errors.Join(ErrValidation,
				fmt.Errorf("rule %q value kind %q does not match flag type %q", r.ID, r.Value.Kind(), d.Type))
		}
		for _, c := range r.Conditions {
			if err := validateCondition(c); err != nil {
				return errors.Join(ErrValidation, fmt.Errorf("rule %q: %w", r.ID, err))
			}
		}
	}

	if d.Rollout != nil {
		if d.Rollout.Percentage < 0 || d.Rollout.Percentage > 100 {
			return errors.Join(ErrValidation,
				fmt.Errorf("rollout percentage %v outside [0,100]", d.Rollout.Percentage))
		}
	}

	if d.Experiment != nil {
		if err := validateExperiment(d.Experiment, d.Type); err != nil {
			return errors.Join(ErrValidation, err)
		}
	}

	for user, v := range d.UserOverrides {
		if v.Kind() != d.Type {
			return errors.Join(ErrValidation,
				fmt.Errorf("user override for %q has kind %q, flag type is %q", user, v.Kind(), d.Type))
		}
	}
	for group, v := range d.GroupOverrides {
		if v.Kind() != d.Type {
			return errors.Join(ErrValidation,
				fmt.Errorf("group override for %q has kind %q, flag type is %q", group, v.Kind(), d.Type))
		}
	}

	return nil
}

func validateCondition(c Condition) error {
	if c.Property == "" && c.Operator != OpInSegment {
		return errors.New("condition property is empty")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Operator.NeedsValue() && len(c.Values) == 0 {
		return fmt.Errorf("operator %q requires a comparison value", c.Operator)
	}

	switch c.Operator {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if _, ok := c.Value().Float(); !ok {
			return fmt.Errorf("operator %q requires a numeric comparison value", c.Operator)
		}
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpRegex,
		OpSemverEquals, OpSemverGreater, OpSemverLess, OpInSegment:
		if _, ok := c.Value().Str(); !ok {
			return fmt.Errorf("operator %q requires a string comparison value", c.Operator)
		}
	case OpIn, OpNotIn:
		// Either an explicit list value or multiple scalar values.
		if _, ok := c.Value().List(); !ok && len(c.Values) < 1 {
			return fmt.Errorf("operator %q requires membership values", c.Operator)
		}
	}

	// Reject patterns that could never match at authoring time. Evaluation
	// still guards: a pattern failing there degrades the single condition.
	if c.Operator == OpRegex {
		pattern, _ := c.Value().Str()
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
	}

	return nil
}

func validateExperiment(e *Experiment, typ Kind) error {
	if len(e.Variants) == 0 {
		return errors.New("experiment has no variants")
	}
	names := make(map[string]struct{}, len(e.Variants))
	total := 0.0
	for _, v := range e.Variants {
		if v.Name == "" {
			return errors.New("experiment variant name is empty")
		}
		if _, dup := names[v.Name]; dup {
			return fmt.Errorf("duplicate experiment variant %q", v.Name)
		}
		names[v.Name] = struct{}{}
		if v.Weight < 0 {
			return fmt.Errorf("experiment variant %q has negative weight", v.Name)
		}
		if v.Value.Kind() != typ {
			return fmt.Errorf("experiment variant %q value kind %q does not match flag type %q",
				v.Name, v.Value.Kind(), typ)
		}
		total += v.Weight
	}
	if math.Abs(total-100) > weightTolerance {
		return fmt.Errorf("experiment variant weights sum to %v, want 100", total)
	}
	return nil
}
