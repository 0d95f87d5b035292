package flag

import (
	"fmt"
	"strings"
	"time"
)

// ID is a normalized lowercase flag key, immutable once created.
type ID string

const maxKeyLength = 255

// NewID normalizes raw to lowercase and validates the character set
// (letters, digits, '.', '_' and '-').
func NewID(raw string) (ID, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return "", fmt.Errorf("%w: key exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return "", fmt.Errorf("%w: illegal character %q in %q", ErrInvalidKey, r, raw)
		}
	}
	return ID(key), nil
}

func (id ID) String() string { return string(id) }

// Rollout gates exposure by a stable percentage of the bucketed population.
// Changing the salt deliberately re-shuffles membership.
type Rollout struct {
	Percentage float64 `json:"percentage"`
	Salt       string  `json:"salt,omitempty"`
	BucketBy   string  `json:"bucket_by,omitempty"` // bucket key name, defaults to user_id
}

// Variant is one weighted branch of an experiment.
type Variant struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // percentage points, all variants sum to 100
	Value  Value   `json:"value"`
}

// Experiment assigns contexts to weighted variants. The final variant
// absorbs floating-point rounding at the boundary.
type Experiment struct {
	Name     string    `json:"name"`
	Variants []Variant `json:"variants"`
	Salt     string    `json:"salt,omitempty"`
	BucketBy string    `json:"bucket_by,omitempty"`
}

// Metadata carries audit fields and free-form classification.
type Metadata struct {
	Description string     `json:"description,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	SunsetAt    *time.Time `json:"sunset_at,omitempty"` // set when status is deprecated
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// Definition is the aggregate root of a feature flag.
type Definition struct {
	ID             ID               `json:"id"`
	Type           Kind             `json:"type"`
	Status         Status           `json:"status"`
	Default        Value            `json:"default"`
	Environments   map[string]bool  `json:"environments,omitempty"` // empty means enabled everywhere
	Rules          []Rule           `json:"rules,omitempty"`
	Rollout        *Rollout         `json:"rollout,omitempty"`
	Experiment     *Experiment      `json:"experiment,omitempty"`
	UserOverrides  map[string]Value `json:"user_overrides,omitempty"`
	GroupOverrides map[string]Value `json:"group_overrides,omitempty"`
	Metadata       Metadata         `json:"metadata,omitzero"`
}

// Normalize restores model invariants after unmarshalling: rules sorted
// descending by priority, stable on insertion order.
func (d *Definition) Normalize() {
	SortRules(d.Rules)
}

// EnabledIn reports whether the flag is enabled for the named environment.
// A definition without explicit environments is enabled everywhere; an
// unknown environment against an explicit set is disabled.
func (d *Definition) EnabledIn(environment string) bool {
	if len(d.Environments) == 0 {
		return true
	}
	return d.Environments[environment]
}

// Clone returns a deep copy so cached definitions are never mutated by
// callers.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Environments != nil {
		cp.Environments = make(map[string]bool, len(d.Environments))
		for k, v := range d.Environments {
			cp.Environments[k] = v
		}
	}
	if d.Rules != nil {
		cp.Rules = make([]Rule, len(d.Rules))
		copy(cp.Rules, d.Rules)
		for i := range cp.Rules {
			if d.Rules[i].Conditions != nil {
				cp.Rules[i].Conditions = make([]Condition, len(d.Rules[i].Conditions))
				copy(cp.Rules[i].Conditions, d.Rules[i].Conditions)
			}
		}
	}
	if d.Rollout != nil {
		r := *d.Rollout
		cp.Rollout = &r
	}
	if d.Experiment != nil {
		e := *d.Experiment
		e.Variants = make([]Variant, len(d.Experiment.Variants))
		copy(e.Variants, d.Experiment.Variants)
		cp.Experiment = &e
	}
	if d.UserOverrides != nil {
		cp.UserOverrides = make(map[string]Value, len(d.UserOverrides))
		for k, v := range d.UserOverrides {
			cp.UserOverrides[k] = v
		}
	}
	if d.GroupOverrides != nil {
		cp.GroupOverrides = make(map[string]Value, len(d.GroupOverrides))
		for k, v := range d.GroupOverrides {
			cp.GroupOverrides[k] = v
		}
	}
	if d.Metadata.Tags != nil {
		cp.Metadata.Tags = make([]string, len(d.Metadata.Tags))
		copy(cp.Metadata.Tags, d.Metadata.Tags)
	}
	if d.Metadata.SunsetAt != nil {
		t := *d.Metadata.SunsetAt
		cp.Metadata.SunsetAt = &t
	}
	return &cp
}
