package engine

import (
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// Reason explains which evaluation step produced the result's value.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonDisabled          Reason = "disabled"
	ReasonOverride          Reason = "override"
	ReasonGroupTargeted     Reason = "group_targeted"
	ReasonRuleMatched       Reason = "rule_matched"
	ReasonExperiment Reason = "experiment"
	// ReasonPercentageRollout is reported only when a rollout switched a
	// boolean flag on. Landing outside the rollout bucket, or a rollout
	// configured on a non-boolean flag, reports ReasonDefault instead:
	// the returned value is the default, untouched by the rollout.
	ReasonPercentageRollout Reason = "percentage_rollout"
	ReasonDefault           Reason = "default"
	ReasonError             Reason = "error"
)

// Result is the outcome of evaluating one flag for one context.
type Result struct {
	FlagID        flag.ID       `json:"flag_id"`
	Value         flag.Value    `json:"value"`
	Found         bool          `json:"found"`
	Reason        Reason        `json:"reason"`
	MatchedRuleID string        `json:"matched_rule_id,omitempty"`
	InExperiment  bool          `json:"in_experiment,omitempty"`
	Variant       string        `json:"variant,omitempty"`
	Duration      time.Duration `json:"duration"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
}
