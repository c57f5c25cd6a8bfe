package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ActionResult is what the CLI and the bot show to a user.
type ActionResult struct {
	Success bool
	Message string
	Alert   *Definition
	Alerts  []Definition
	Error   error
}

// Actions wraps the registry with user-facing result values. Failures never
// escape as errors; they come back as Success=false.
type Actions struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewActions builds the action layer.
func NewActions(registry *Registry, logger zerolog.Logger) *Actions {
	return &Actions{
		registry: registry,
		logger:   logger.With().Str("component", "alert-actions").Logger(),
	}
}

func (a *Actions) Create(ctx context.Context, p CreateParams) ActionResult {
	def, err := a.registry.Create(ctx, p)
	if err != nil {
		return a.fail("create", "Could not create alert", err)
	}
	a.logger.Info().Str("alert_id", def.ID).Str("owner", def.Owner).Strs("symbols", def.Symbols).Msg("alert created")
	return ActionResult{
		Success: true,
		Message: fmt.Sprintf("Alert %s created. You will be notified when %s.", def.ID, Describe(def)),
		Alert:   &def,
	}
}

func (a *Actions) List(ctx context.Context, owner string, filter ListFilter) ActionResult {
	defs, err := a.registry.List(ctx, owner, filter)
	if err != nil {
		return a.fail("list", "Could not list alerts", err)
	}
	if len(defs) == 0 {
		return ActionResult{Success: true, Message: "You have no alerts.", Alerts: defs}
	}

	var b strings.Builder
	b.WriteString("Your alerts:")
	for _, def := range defs {
		state := "active"
		if !def.Active {
			state = "paused"
		}
		fmt.Fprintf(&b, "\n- [%s] %s (%s)", def.ID, Describe(def), state)
	}
	return ActionResult{Success: true, Message: b.String(), Alerts: defs}
}

// DeletedMessage is the reply to every delete, including ids that are
// already gone.
const DeletedMessage = "Alert deleted successfully."

func (a *Actions) Delete(ctx context.Context, id string) ActionResult {
	if err := a.registry.Delete(ctx, id); err != nil {
		return a.fail("delete", "Could not delete alert", err)
	}
	a.logger.Info().Str("alert_id", id).Msg("alert deleted")
	return ActionResult{Success: true, Message: DeletedMessage}
}

func (a *Actions) Update(ctx context.Context, id string, patch Patch) ActionResult {
	def, err := a.registry.Update(ctx, id, patch)
	if err != nil {
		return a.fail("update", "Could not update alert", err)
	}
	state := "active"
	if !def.Active {
		state = "paused"
	}
	return ActionResult{
		Success: true,
		Message: fmt.Sprintf("Alert %s updated: %s (%s).", def.ID, Describe(def), state),
		Alert:   &def,
	}
}

func (a *Actions) fail(op, prefix string, err error) ActionResult {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrNotFound):
		a.logger.Debug().Err(err).Str("op", op).Msg("alert action rejected")
	default:
		a.logger.Error().Err(err).Str("op", op).Msg("alert action failed")
	}
	return ActionResult{Message: fmt.Sprintf("%s: %v", prefix, err), Error: err}
}

// Describe renders the trigger condition of def in plain words.
func Describe(def Definition) string {
	symbols := strings.Join(def.Symbols, ", ")
	switch def.Kind {
	case KindThreshold:
		return fmt.Sprintf("%s goes %s %s USD", symbols, def.Condition.lower(), formatNumber(def.Value))
	case KindPercentChange:
		return fmt.Sprintf("%s moves %s %s%% from its baseline", symbols, directionWord(def.Condition), formatNumber(def.Value))
	default:
		return fmt.Sprintf("any of %s moves %s %s%% from its baseline", symbols, directionWord(def.Condition), formatNumber(def.Value))
	}
}

func directionWord(c Condition) string {
	if c == ConditionBelow {
		return "below -"
	}
	return "above +"
}
