package engine

import (
	"fmt"
	"strings"

	"pokedesk/internal/order"
)

type narrationInput struct {
	species      string
	action       order.Action
	route        order.Route
	direction    order.Direction
	leverage     int
	leverageNote string
	stopRef      string
	stopMode     order.StopLossMode
	quoteHP      float64
	level        int
}

func narrate(in narrationInput) string {
	prefix := ""
	if in.quoteHP > 0 {
		level := max(1, in.level)
		prefix = fmt.Sprintf("Trainer planned HP %s at LV%d (notional ~ %s). ",
			formatQuoteAmount(in.quoteHP), level, formatQuoteAmount(in.quoteHP*float64(level)))
	}

	var base string
	switch {
	case in.action == order.ActionCatch && in.direction == order.DirectionLong:
		base = fmt.Sprintf("Trainer opened a long adventure with %s at LV%d.", in.species, in.leverage)
	case in.action == order.ActionRelease && in.direction == order.DirectionShort:
		base = fmt.Sprintf("Trainer launched a short ambush on %s at LV%d.", in.species, in.leverage)
	case in.route == order.RouteSpot && in.action == order.ActionCatch:
		base = fmt.Sprintf("Trainer threw a Poké Ball at %s.", in.species)
	case in.route == order.RouteSpot && in.action == order.ActionRelease:
		base = fmt.Sprintf("Trainer released %s back to the wild.", in.species)
	default:
		base = fmt.Sprintf("Trainer guided %s.", in.species)
	}
	if in.leverageNote != "" {
		base += " " + in.leverageNote
	}
	switch {
	case in.stopRef != "" && in.stopMode == order.StopLossPrice:
		base += " Escape Rope armed (Anchor)."
	case in.stopRef != "" && in.stopMode == order.StopLossPercent:
		base += " Escape Rope armed (Distance (%))."
	case in.stopRef != "":
		base += " Escape Rope armed."
	}
	return strings.TrimSpace(prefix + base)
}

func badgeFor(action order.Action) string {
	switch action {
	case order.ActionCatch:
		return "Capture Combo"
	case order.ActionRelease:
		return "Tidy Trainer"
	case order.ActionHeal:
		return "Careful Tactician"
	case order.ActionRun:
		return "Safe Scout"
	}
	return "Adventurer"
}
