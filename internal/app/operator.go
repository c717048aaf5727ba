package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokedesk/internal/alerts"
	"pokedesk/internal/engine"
	"pokedesk/internal/exchange"
	"pokedesk/internal/journal"
	"pokedesk/internal/order"
)

const operatorEventLimit = 10

// console is the slice of the order engine the operator commands use.
type console interface {
	ListPartyStatus(ctx context.Context, demo bool) engine.PartyStatus
	ListOpenOrdersBySpecies(ctx context.Context, demo bool) map[string]engine.SpeciesOrders
	CancelAllForInstrument(ctx context.Context, token string) (engine.CancelResult, error)
	ExecuteOrder(ctx context.Context, o order.EncounterOrder) (order.Receipt, error)
	Guardrails() order.GuardrailStatus
	RecentEvents(ctx context.Context) ([]journal.Entry, error)
}

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID int64     `json:"update_id"`
	Time     time.Time `json:"time"`
	Action   string    `json:"action"`
	Command  string    `json:"command"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	ChatID   int64     `json:"chat_id"`
	Species  string    `json:"species,omitempty"`
	Outcome  string    `json:"outcome"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || !a.alerts.Enabled() {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	resp, ok := a.operatorReply(ctx, upd, chatID, allowedUsers)
	if !ok || resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, exchange.SanitizeVendor(resp)); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

// operatorReply filters updates to the configured chat and users and runs
// the command. The bool is false when the update is ignored.
func (a *App) operatorReply(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) (string, bool) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return "", false
	}
	if msg.Chat.ID != chatID {
		return "", false
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return "", false
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return "", false
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	return resp, true
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// group chats address bots as /cmd@botname
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	demo := a.cfg != nil && a.cfg.Orders.DemoMode
	switch cmd {
	case "party", "status":
		return formatParty(a.ops.ListPartyStatus(ctx, demo)), nil
	case "orders":
		return formatOrders(a.ops.ListOpenOrdersBySpecies(ctx, demo)), nil
	case "guardrails":
		return formatGuardrails(a.ops.Guardrails()), nil
	case "events":
		entries, err := a.ops.RecentEvents(ctx)
		if err != nil {
			return "", err
		}
		return formatEvents(entries), nil
	case "cancel":
		token, err := speciesArg(cmd, args)
		if err != nil {
			return "", err
		}
		result, err := a.ops.CancelAllForInstrument(ctx, token)
		if err != nil {
			a.auditOperatorEvent(ctx, meta, "cancel", token, err.Error())
			return "", err
		}
		outcome := fmt.Sprintf("cancelled %d request(s) for %s (%s)", result.CancelledCount, result.Species, result.Symbol)
		if !result.OK {
			outcome = fmt.Sprintf("cancel incomplete for %s (%s): %d failed", result.Species, result.Symbol, len(result.Failed))
		}
		a.auditOperatorEvent(ctx, meta, "cancel", result.Species, outcome)
		return outcome, nil
	case "run":
		token, err := speciesArg(cmd, args)
		if err != nil {
			return "", err
		}
		species := a.Species(token)
		receipt, err := a.ops.ExecuteOrder(ctx, order.EncounterOrder{
			Species:  species,
			Action:   order.ActionRun,
			DemoMode: demo,
		})
		if err != nil {
			a.auditOperatorEvent(ctx, meta, "run", species, err.Error())
			return "", err
		}
		a.auditOperatorEvent(ctx, meta, "run", species, receipt.Narration)
		return receipt.Narration, nil
	default:
		return operatorHelpText(), nil
	}
}

func speciesArg(cmd string, args []string) (string, error) {
	token := strings.TrimSpace(strings.Join(args, " "))
	if token == "" {
		return "", fmt.Errorf("/%s needs a species, base or symbol", cmd)
	}
	return token, nil
}

func formatParty(status engine.PartyStatus) string {
	lines := []string{fmt.Sprintf("link shell: %s", status.LinkShell)}
	energy := status.Energy
	switch {
	case !energy.Present:
		lines = append(lines, "energy: offline")
	case energy.ShowNumbers && energy.Value != nil:
		lines = append(lines, fmt.Sprintf("energy: %.2f %s (%.0f%%, %s)", *energy.Value, energy.Unit, energy.Fill*100, energy.Source))
	default:
		lines = append(lines, fmt.Sprintf("energy: %.0f%% (%s)", energy.Fill*100, energy.Source))
	}
	if status.PositionMode != "" {
		lines = append(lines, "position mode: "+status.PositionMode)
	}
	lines = append(lines, fmt.Sprintf("party: %d/%d", len(status.Party), status.Guardrails.MaxPartySize))
	for _, m := range status.Party {
		side := ""
		if m.HoldSide != "" {
			side = " " + m.HoldSide
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)%s %.2f USDT hp %.0f%%", m.Species, m.Symbol, side, m.Amount, m.HP*100))
	}
	return strings.Join(lines, "\n")
}

func formatOrders(bySpecies map[string]engine.SpeciesOrders) string {
	if len(bySpecies) == 0 {
		return "no pending throws"
	}
	names := make([]string, 0, len(bySpecies))
	for name := range bySpecies {
		names = append(names, name)
	}
	sort.Strings(names)
	var lines []string
	for _, name := range names {
		bucket := bySpecies[name]
		lines = append(lines, fmt.Sprintf("%s (%s)", name, bucket.Symbol))
		for _, e := range bucket.Entries {
			size, price := "?", "market"
			if e.Size != nil {
				size = strconv.FormatFloat(*e.Size, 'f', -1, 64)
			}
			if e.Price != nil {
				price = strconv.FormatFloat(*e.Price, 'f', -1, 64)
			}
			lines = append(lines, fmt.Sprintf("- %s %s %s %s @ %s", e.Route, e.Side, e.OrderType, size, price))
		}
	}
	return strings.Join(lines, "\n")
}

func formatGuardrails(g order.GuardrailStatus) string {
	return strings.Join([]string{
		fmt.Sprintf("cooldown: %ds (remaining %.0fs)", g.CooldownSeconds, g.CooldownRemaining),
		fmt.Sprintf("max party size: %d", g.MaxPartySize),
		fmt.Sprintf("minimum energy: %.2f", g.MinimumEnergy),
	}, "\n")
}

func formatEvents(entries []journal.Entry) string {
	if len(entries) == 0 {
		return "adventure log is empty"
	}
	if len(entries) > operatorEventLimit {
		entries = entries[:operatorEventLimit]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.Timestamp.UTC().Format("15:04:05") + " " + e.Message
		if e.Badge != "" {
			line += " [" + e.Badge + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/party - energy, guardrails and open positions",
		"/orders - newest pending orders per species",
		"/cancel <species> - cancel every open order of a species",
		"/run <species> - close positions and protective orders of a species",
		"/guardrails - cooldown, party cap and reserve",
		"/events - latest adventure log lines",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

// auditOperatorEvent records state-changing commands in the adventure log.
func (a *App) auditOperatorEvent(ctx context.Context, meta operatorMeta, action, species, outcome string) {
	if a.journal == nil {
		return
	}
	event := operatorAuditEvent{
		UpdateID: meta.UpdateID,
		Time:     time.Now().UTC(),
		Action:   action,
		Command:  meta.Raw,
		UserID:   meta.UserID,
		Username: meta.Username,
		ChatID:   meta.ChatID,
		Species:  species,
		Outcome:  exchange.SanitizeVendor(outcome),
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	err = a.journal.Append(ctx, journal.Entry{
		ID:        uuid.NewString(),
		Timestamp: event.Time,
		Message:   fmt.Sprintf("Operator %s for %s: %s", action, species, event.Outcome),
		Payload:   payload,
	})
	if err != nil {
		a.log.Warn("operator audit failed", zap.Error(err))
	}
}
