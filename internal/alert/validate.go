package alert

import (
	"math"
	"strings"

	"crypto-alerts/internal/market"
)

// normalize validates params and returns them with symbols uppercased.
func (p CreateParams) normalize() (CreateParams, error) {
	out := p
	out.Owner = strings.TrimSpace(p.Owner)
	if out.Owner == "" {
		return out, &ValidationError{Field: "owner", Reason: "must not be empty"}
	}

	kind, err := ParseKind(string(p.Kind))
	if err != nil {
		return out, err
	}
	out.Kind = kind

	cond, err := ParseCondition(string(p.Condition))
	if err != nil {
		return out, err
	}
	out.Condition = cond

	symbols := make([]string, 0, len(p.Symbols))
	seen := make(map[string]struct{}, len(p.Symbols))
	for _, raw := range p.Symbols {
		s := market.NormalizeSymbol(raw)
		if s == "" {
			return out, &ValidationError{Field: "symbols", Reason: "blank symbol"}
		}
		if _, dup := seen[s]; dup {
			return out, &ValidationError{Field: "symbols", Reason: "duplicate symbol " + s}
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return out, &ValidationError{Field: "symbols", Reason: "at least one symbol is required"}
	}
	if kind != KindMultiChange && len(symbols) != 1 {
		return out, &ValidationError{Field: "symbols", Reason: string(kind) + " alerts take exactly one symbol"}
	}
	out.Symbols = symbols

	if err := validateValue(kind, p.Value); err != nil {
		return out, err
	}
	return out, nil
}

func validateValue(kind Kind, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ValidationError{Field: "value", Reason: "must be a finite number"}
	}
	if kind.IsPercent() && value < 0 {
		return &ValidationError{Field: "value", Reason: "percent thresholds must not be negative"}
	}
	if kind == KindThreshold && value <= 0 {
		return &ValidationError{Field: "value", Reason: "price thresholds must be positive"}
	}
	return nil
}
