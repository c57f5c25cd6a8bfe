package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEvaluateThresholdAbove(t *testing.T) {
	def := Definition{ID: "a1", Symbols: []string{"BTC"}, Kind: KindThreshold, Condition: ConditionAbove, Value: 50000, Active: true}

	res := Evaluate(def, map[string]float64{"BTC": 51000}, evalNow, EvalOptions{})

	require.True(t, res.Triggered)
	assert.Contains(t, res.Message, "BTC")
	assert.Contains(t, res.Message, "51000")
	assert.Contains(t, res.Message, "50000")
	assert.Equal(t, "BTC price is now 51000 USD (above 50000)", res.Message)
	require.NotNil(t, res.Mutation)
	assert.Equal(t, map[string]float64{"BTC": 51000}, res.Mutation.LastKnownPrices)
	require.NotNil(t, res.Mutation.LastTriggeredAt)
	assert.Equal(t, evalNow, *res.Mutation.LastTriggeredAt)
}

func TestEvaluateThresholdIsStrict(t *testing.T) {
	cases := []struct {
		name      string
		cond      Condition
		price     float64
		triggered bool
	}{
		{"above equal", ConditionAbove, 100, false},
		{"above over", ConditionAbove, 100.01, true},
		{"above under", ConditionAbove, 99, false},
		{"below equal", ConditionBelow, 100, false},
		{"below under", ConditionBelow, 99.99, true},
		{"below over", ConditionBelow, 101, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := Definition{Symbols: []string{"SOL"}, Kind: KindThreshold, Condition: tc.cond, Value: 100}
			res := Evaluate(def, map[string]float64{"SOL": tc.price}, evalNow, EvalOptions{})
			assert.Equal(t, tc.triggered, res.Triggered)
			if !tc.triggered {
				assert.Empty(t, res.Message)
				assert.Nil(t, res.Mutation)
			}
		})
	}
}

func TestEvaluatePercentBelow(t *testing.T) {
	def := Definition{
		Symbols:         []string{"ETH"},
		Kind:            KindPercentChange,
		Condition:       ConditionBelow,
		Value:           5,
		LastKnownPrices: map[string]float64{"ETH": 2000},
	}

	res := Evaluate(def, map[string]float64{"ETH": 1880}, evalNow, EvalOptions{})

	require.True(t, res.Triggered)
	assert.Equal(t, "ETH price changed by -6.00% (below 5%)", res.Message)
	require.NotNil(t, res.Mutation)
	assert.Equal(t, 1880.0, res.Mutation.LastKnownPrices["ETH"])
}

func TestEvaluatePercentAboveNeedsStrictMove(t *testing.T) {
	def := Definition{
		Symbols:         []string{"ETH"},
		Kind:            KindPercentChange,
		Condition:       ConditionAbove,
		Value:           5,
		LastKnownPrices: map[string]float64{"ETH": 2000},
	}

	assert.False(t, Evaluate(def, map[string]float64{"ETH": 2100}, evalNow, EvalOptions{}).Triggered)
	assert.True(t, Evaluate(def, map[string]float64{"ETH": 2101}, evalNow, EvalOptions{}).Triggered)
	// A drop never satisfies ABOVE.
	assert.False(t, Evaluate(def, map[string]float64{"ETH": 1000}, evalNow, EvalOptions{}).Triggered)
}

func TestEvaluatePercentZeroBaselineNeverTriggers(t *testing.T) {
	for _, price := range []float64{0, 1, 1e9} {
		for _, cond := range []Condition{ConditionAbove, ConditionBelow} {
			def := Definition{
				Symbols:         []string{"NEW"},
				Kind:            KindPercentChange,
				Condition:       cond,
				Value:           0,
				LastKnownPrices: map[string]float64{"NEW": 0},
			}
			res := Evaluate(def, map[string]float64{"NEW": price}, evalNow, EvalOptions{})
			assert.False(t, res.Triggered, "price %v cond %s", price, cond)
			assert.Nil(t, res.Mutation)
		}
	}
}

func TestEvaluateMultiListsOnlyTriggeringSymbols(t *testing.T) {
	def := Definition{
		Symbols:         []string{"BTC", "ETH"},
		Kind:            KindMultiChange,
		Condition:       ConditionAbove,
		Value:           10,
		LastKnownPrices: map[string]float64{"BTC": 50000, "ETH": 2000},
	}

	res := Evaluate(def, map[string]float64{"BTC": 50000, "ETH": 2240}, evalNow, EvalOptions{})

	require.True(t, res.Triggered)
	assert.Equal(t, "Price changes: ETH: 12.00%", res.Message)
	assert.NotContains(t, res.Message, "BTC")
	require.NotNil(t, res.Mutation)
	assert.Equal(t, map[string]float64{"BTC": 50000, "ETH": 2240}, res.Mutation.LastKnownPrices)
}

func TestEvaluateMultiKeepsSymbolOrder(t *testing.T) {
	def := Definition{
		Symbols:         []string{"SOL", "BTC"},
		Kind:            KindMultiChange,
		Condition:       ConditionBelow,
		Value:           1,
		LastKnownPrices: map[string]float64{"BTC": 100, "SOL": 10},
	}

	res := Evaluate(def, map[string]float64{"BTC": 90, "SOL": 8}, evalNow, EvalOptions{})

	require.True(t, res.Triggered)
	assert.Equal(t, "Price changes: SOL: -20.00%, BTC: -10.00%", res.Message)
}

func TestEvaluateMissingPriceNeverTriggers(t *testing.T) {
	threshold := Definition{Symbols: []string{"XRP"}, Kind: KindThreshold, Condition: ConditionBelow, Value: 10}
	assert.False(t, Evaluate(threshold, map[string]float64{"BTC": 1}, evalNow, EvalOptions{}).Triggered)

	multi := Definition{
		Symbols:         []string{"XRP", "BTC"},
		Kind:            KindMultiChange,
		Condition:       ConditionAbove,
		Value:           1,
		LastKnownPrices: map[string]float64{"XRP": 1, "BTC": 100},
	}
	res := Evaluate(multi, map[string]float64{"BTC": 110}, evalNow, EvalOptions{})
	require.True(t, res.Triggered)
	assert.Equal(t, "Price changes: BTC: 10.00%", res.Message)
	// The missing symbol keeps its old baseline.
	assert.Equal(t, map[string]float64{"XRP": 1, "BTC": 110}, res.Mutation.LastKnownPrices)
}

func TestEvaluateNonTriggeringIsIdempotent(t *testing.T) {
	last := evalNow.Add(-time.Hour)
	def := Definition{
		Symbols:         []string{"ETH"},
		Kind:            KindPercentChange,
		Condition:       ConditionAbove,
		Value:           50,
		LastTriggeredAt: &last,
		LastKnownPrices: map[string]float64{"ETH": 2000},
	}
	prices := map[string]float64{"ETH": 2100}

	first := Evaluate(def, prices, evalNow, EvalOptions{})
	second := Evaluate(def, prices, evalNow, EvalOptions{})

	assert.False(t, first.Triggered)
	assert.Nil(t, first.Mutation)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]float64{"ETH": 2000}, def.LastKnownPrices)
	assert.Equal(t, last, *def.LastTriggeredAt)
}

func TestEvaluatePollPolicyMovesBaselineWithoutTrigger(t *testing.T) {
	def := Definition{
		Symbols:         []string{"ETH"},
		Kind:            KindPercentChange,
		Condition:       ConditionAbove,
		Value:           50,
		LastKnownPrices: map[string]float64{"ETH": 2000},
	}

	res := Evaluate(def, map[string]float64{"ETH": 2100}, evalNow, EvalOptions{Policy: BaselineOnPoll})

	assert.False(t, res.Triggered)
	require.NotNil(t, res.Mutation)
	assert.Equal(t, 2100.0, res.Mutation.LastKnownPrices["ETH"])
	assert.Nil(t, res.Mutation.LastTriggeredAt)

	incomplete := Evaluate(def, map[string]float64{}, evalNow, EvalOptions{Policy: BaselineOnPoll})
	assert.Nil(t, incomplete.Mutation)
}

func TestParseBaselinePolicy(t *testing.T) {
	p, err := ParseBaselinePolicy("")
	require.NoError(t, err)
	assert.Equal(t, BaselineOnTrigger, p)

	p, err = ParseBaselinePolicy("POLL")
	require.NoError(t, err)
	assert.Equal(t, BaselineOnPoll, p)

	_, err = ParseBaselinePolicy("sometimes")
	assert.Error(t, err)
}
