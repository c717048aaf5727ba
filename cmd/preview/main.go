package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pokedesk/internal/app"
	"pokedesk/internal/config"
	"pokedesk/internal/logging"
	"pokedesk/internal/order"
)

const defaultTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	view := flag.String("view", "preview", "preview, execute, party, orders, roster or events")
	species := flag.String("species", "", "species, base token or market symbol")
	action := flag.String("action", "catch", "catch, release, heal or run")
	orderType := flag.String("type", "market", "market or limit")
	size := flag.String("size", "", "Pokeball strength in base units")
	price := flag.String("price", "", "limit price")
	stop := flag.String("stop", "", "Escape Rope value")
	stopMode := flag.String("stop-mode", "anchor", "anchor (price) or distance (percent)")
	sensor := flag.String("sensor", "mark", "mark or last")
	level := flag.Int("level", 0, "leverage level")
	demo := flag.Bool("demo", false, "force demo mode")
	timeout := flag.Duration("timeout", defaultTimeout, "overall timeout")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *demo {
		cfg.Orders.DemoMode = true
	}
	// one-shot runs never serve metrics or poll the operator chat
	disabled := false
	cfg.Metrics.Enabled = &disabled
	cfg.Telegram.OperatorEnabled = false

	log := logging.New(config.LoggingConfig{Level: "warn"})
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		fatal(err)
	}
	defer application.Close()
	engine := application.Engine()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out any
	switch *view {
	case "party":
		out = engine.ListPartyStatus(ctx, cfg.Orders.DemoMode)
	case "orders":
		out = engine.ListOpenOrdersBySpecies(ctx, cfg.Orders.DemoMode)
	case "roster":
		out = engine.Roster()
	case "events":
		entries, err := engine.RecentEvents(ctx)
		if err != nil {
			fatal(err)
		}
		out = entries
	case "preview":
		raw := orderForm(application.Species(*species), *action, *orderType, *size, *price, *stop, *stopMode, *sensor, *level)
		preview, err := engine.BuildOrderPreview(ctx, raw)
		if err != nil {
			fatal(err)
		}
		out = preview
	case "execute":
		o, err := encounter(application.Species(*species), *action, *orderType, *size, *price, *stop, *stopMode, *sensor, *level)
		if err != nil {
			fatal(err)
		}
		o.DemoMode = cfg.Orders.DemoMode
		receipt, err := engine.ExecuteOrder(ctx, o)
		if err != nil {
			fatal(err)
		}
		out = receipt
	default:
		fatal(fmt.Errorf("unknown view %q", *view))
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(pretty))
}

func orderForm(species, action, orderType, size, price, stop, stopMode, sensor string, level int) map[string]any {
	raw := map[string]any{
		"species":   species,
		"action":    action,
		"orderType": orderType,
		"size":      size,
		"price":     price,
	}
	if stop != "" {
		raw["rope"] = map[string]any{"value": stop, "mode": stopMode, "sensor": sensor}
	}
	if level > 0 {
		raw["level"] = level
	}
	return raw
}

func encounter(species, action, orderType, size, price, stop, stopMode, sensor string, level int) (order.EncounterOrder, error) {
	if strings.TrimSpace(species) == "" {
		return order.EncounterOrder{}, errors.New("-species is required")
	}
	act, err := order.ParseAction(action)
	if err != nil {
		return order.EncounterOrder{}, err
	}
	o := order.EncounterOrder{
		Species: species,
		Action:  act,
		Style:   order.Style(strings.ToLower(orderType)),
		Level:   level,
	}
	if o.Strength, _, err = order.ParseAmount(size); err != nil && act != order.ActionRun {
		return o, err
	}
	if o.Style == order.StyleLimit {
		if o.LimitPrice, _, err = order.ParseAmount(price); err != nil {
			return o, err
		}
	}
	value, ok, err := order.ParseAmount(stop)
	if err != nil {
		return o, err
	}
	if ok {
		o.StopLossValue = value
		o.StopLossMode = order.StopLossPrice
		if strings.EqualFold(stopMode, "distance") || strings.EqualFold(stopMode, "percent") {
			o.StopLossMode = order.StopLossPercent
		}
	}
	o.StopLossTrigger = order.TriggerMark
	if strings.EqualFold(sensor, "last") {
		o.StopLossTrigger = order.TriggerLast
	}
	return o, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
