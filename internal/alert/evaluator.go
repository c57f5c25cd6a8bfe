package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaselinePolicy controls when last_known_prices moves forward.
type BaselinePolicy string

const (
	// BaselineOnTrigger resets baselines only when the alert fires.
	BaselineOnTrigger BaselinePolicy = "trigger"
	// BaselineOnPoll resets baselines on every evaluation with complete prices.
	BaselineOnPoll BaselinePolicy = "poll"
)

// ParseBaselinePolicy maps a config value to a policy. Empty means trigger.
func ParseBaselinePolicy(raw string) (BaselinePolicy, error) {
	switch BaselinePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BaselineOnTrigger:
		return BaselineOnTrigger, nil
	case BaselineOnPoll:
		return BaselineOnPoll, nil
	}
	return "", fmt.Errorf("unknown baseline policy %q", raw)
}

// EvalOptions tunes Evaluate.
type EvalOptions struct {
	Policy BaselinePolicy
}

var hundred = decimal.NewFromInt(100)

// Evaluate decides whether def fires against prices. It does not touch any
// state; persisting the returned Mutation is the caller's job.
func Evaluate(def Definition, prices map[string]float64, now time.Time, opts EvalOptions) Result {
	snapshot := make(map[string]float64, len(def.Symbols))
	for _, symbol := range def.Symbols {
		if p, ok := prices[symbol]; ok {
			snapshot[symbol] = p
		}
	}

	res := Result{Alert: def, Prices: snapshot}

	switch def.Kind {
	case KindThreshold:
		res.Triggered, res.Message = evalThreshold(def, snapshot)
	case KindPercentChange:
		res.Triggered, res.Message = evalPercent(def, snapshot)
	case KindMultiChange:
		res.Triggered, res.Message = evalMulti(def, snapshot)
	}

	complete := len(snapshot) == len(def.Symbols)
	switch {
	case res.Triggered:
		at := now.UTC()
		res.Mutation = &Mutation{
			LastKnownPrices: mergeBaselines(def.LastKnownPrices, snapshot),
			LastTriggeredAt: &at,
		}
	case opts.Policy == BaselineOnPoll && complete:
		res.Mutation = &Mutation{LastKnownPrices: mergeBaselines(def.LastKnownPrices, snapshot)}
	}
	return res
}

func evalThreshold(def Definition, prices map[string]float64) (bool, string) {
	if len(def.Symbols) == 0 {
		return false, ""
	}
	symbol := def.Symbols[0]
	p, ok := prices[symbol]
	if !ok {
		return false, ""
	}
	hit := (def.Condition == ConditionAbove && p > def.Value) ||
		(def.Condition == ConditionBelow && p < def.Value)
	if !hit {
		return false, ""
	}
	return true, fmt.Sprintf("%s price is now %s USD (%s %s)",
		symbol, formatNumber(p), def.Condition.lower(), formatNumber(def.Value))
}

func evalPercent(def Definition, prices map[string]float64) (bool, string) {
	if len(def.Symbols) == 0 {
		return false, ""
	}
	symbol := def.Symbols[0]
	change, ok := changeFor(def, prices, symbol)
	if !ok || !meets(def.Condition, change, def.Value) {
		return false, ""
	}
	return true, fmt.Sprintf("%s price changed by %s%% (%s %s%%)",
		symbol, change.StringFixed(2), def.Condition.lower(), formatNumber(def.Value))
}

func evalMulti(def Definition, prices map[string]float64) (bool, string) {
	var parts []string
	for _, symbol := range def.Symbols {
		change, ok := changeFor(def, prices, symbol)
		if !ok || !meets(def.Condition, change, def.Value) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s%%", symbol, change.StringFixed(2)))
	}
	if len(parts) == 0 {
		return false, ""
	}
	return true, "Price changes: " + strings.Join(parts, ", ")
}

// changeFor returns the percent move of symbol from its baseline. A missing
// price or a zero baseline yields ok=false.
func changeFor(def Definition, prices map[string]float64, symbol string) (decimal.Decimal, bool) {
	current, ok := prices[symbol]
	if !ok {
		return decimal.Zero, false
	}
	baseline := def.LastKnownPrices[symbol]
	if baseline == 0 {
		return decimal.Zero, false
	}
	return PercentChange(baseline, current), true
}

// PercentChange returns (current-baseline)/baseline*100. baseline must be non-zero.
func PercentChange(baseline, current float64) decimal.Decimal {
	old := decimal.NewFromFloat(baseline)
	return decimal.NewFromFloat(current).Sub(old).Div(old).Mul(hundred)
}

func meets(cond Condition, change decimal.Decimal, value float64) bool {
	limit := decimal.NewFromFloat(value)
	switch cond {
	case ConditionAbove:
		return change.GreaterThan(limit)
	case ConditionBelow:
		return change.LessThan(limit.Neg())
	}
	return false
}

func mergeBaselines(old, current map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(old)+len(current))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range current {
		out[k] = v
	}
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
