package alert

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the shape of condition an alert evaluates.
type Kind string

const (
	// KindThreshold fires when a single symbol crosses an absolute USD price.
	KindThreshold Kind = "THRESHOLD"
	// KindPercentChange fires when a single symbol moves by a percentage from its baseline.
	KindPercentChange Kind = "PERCENT_CHANGE"
	// KindMultiChange fires when any of several symbols moves by a percentage from its baseline.
	KindMultiChange Kind = "MULTI_CHANGE"
)

// Condition is the direction an alert watches.
type Condition string

const (
	ConditionAbove Condition = "ABOVE"
	ConditionBelow Condition = "BELOW"
)

// ParseKind accepts canonical kind names and the short aliases used by the CLI and bot.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "THRESHOLD", "PRICE_THRESHOLD", "PRICE":
		return KindThreshold, nil
	case "PERCENT_CHANGE", "PRICE_CHANGE_PERCENT", "PERCENT", "CHANGE":
		return KindPercentChange, nil
	case "MULTI_CHANGE", "MULTI_CRYPTO_CHANGE", "MULTI":
		return KindMultiChange, nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown alert kind %q", raw)}
}

// ParseCondition accepts ABOVE/BELOW in any case.
func ParseCondition(raw string) (Condition, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ABOVE", "UP", ">":
		return ConditionAbove, nil
	case "BELOW", "DOWN", "<":
		return ConditionBelow, nil
	}
	return "", &ValidationError{Field: "condition", Reason: fmt.Sprintf("unknown condition %q", raw)}
}

// IsPercent reports whether the kind compares against baselines.
func (k Kind) IsPercent() bool {
	return k == KindPercentChange || k == KindMultiChange
}

func (c Condition) lower() string {
	return strings.ToLower(string(c))
}

// Definition is a persisted alert.
type Definition struct {
	ID              string
	Owner           string
	Symbols         []string
	Kind            Kind
	Condition       Condition
	Value           float64
	Active          bool
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
	LastKnownPrices map[string]float64
}

// CreateParams carries the caller-supplied fields of a new alert.
type CreateParams struct {
	Owner     string
	Symbols   []string
	Kind      Kind
	Condition Condition
	Value     float64
}

// ListFilter narrows List results. A nil Active returns every alert.
type ListFilter struct {
	Active *bool
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Value           *float64
	Active          *bool
	LastKnownPrices map[string]float64
	LastTriggeredAt *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Value == nil && p.Active == nil && p.LastKnownPrices == nil && p.LastTriggeredAt == nil
}

// Mutation is what an evaluation asks the registry to persist.
type Mutation struct {
	LastKnownPrices map[string]float64
	LastTriggeredAt *time.Time
}

// Patch converts the mutation into a registry update.
func (m Mutation) Patch() Patch {
	return Patch{LastKnownPrices: m.LastKnownPrices, LastTriggeredAt: m.LastTriggeredAt}
}

// Result is the outcome of evaluating one alert against one price map.
type Result struct {
	Alert     Definition
	Triggered bool
	Message   string
	Prices    map[string]float64
	Mutation  *Mutation
}

// Apply returns a copy of def with patch applied.
func (def Definition) Apply(p Patch) Definition {
	out := def
	if p.Value != nil {
		out.Value = *p.Value
	}
	if p.Active != nil {
		out.Active = *p.Active
	}
	if p.LastKnownPrices != nil {
		out.LastKnownPrices = copyPrices(p.LastKnownPrices)
	}
	if p.LastTriggeredAt != nil {
		at := p.LastTriggeredAt.UTC()
		out.LastTriggeredAt = &at
	}
	return out
}

func copyPrices(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
