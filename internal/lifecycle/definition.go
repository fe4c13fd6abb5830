// Package lifecycle applies table-driven status transitions to ledgers and keeps
// each resource's capacity counter in step with them.
package lifecycle

import (
	"fmt"
	"sort"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
)

// Action names a requested transition.
type Action string

const (
	ActionRegister     Action = "register"
	ActionMarkAttended Action = "mark_attended"
	ActionCancel       Action = "cancel"
	ActionRequest      Action = "request"
	ActionAccept       Action = "accept"
	ActionComplete     Action = "complete"
	ActionPledge       Action = "pledge"
	ActionFail         Action = "fail"
	ActionRefund       Action = "refund"
)

func (a Action) String() string {
	return string(a)
}

// Effect is the counter side effect tied to a transition.
type Effect int

const (
	EffectNone Effect = iota
	// EffectReserve takes Weight units of capacity, failing when exhausted.
	EffectReserve
	// EffectRelease returns Weight units, flooring at zero.
	EffectRelease
	// EffectAccumulate adds Weight to an uncapped total.
	EffectAccumulate
	// EffectDeduct subtracts Weight from an uncapped total, flooring at zero.
	EffectDeduct
)

func (e Effect) String() string {
	switch e {
	case EffectReserve:
		return "reserve"
	case EffectRelease:
		return "release"
	case EffectAccumulate:
		return "accumulate"
	case EffectDeduct:
		return "deduct"
	default:
		return "none"
	}
}

// Rule is one row of a transition table.
type Rule struct {
	From   enums.LedgerStatus
	Action Action
	To     enums.LedgerStatus
	Effect Effect
}

// Transition is the outcome of looking up (status, action).
type Transition struct {
	To     enums.LedgerStatus
	Effect Effect
}

// Definition binds a ledger kind to its counter kind and transition table.
type Definition struct {
	kind        enums.LedgerKind
	counterKind enums.CounterKind
	table       map[enums.LedgerStatus]map[Action]Transition
	counted     map[enums.LedgerStatus]bool
	rules       []Rule
}

// NewDefinition validates the rules and builds a Definition. A (from, action)
// pair may appear once; counted lists the statuses that hold counter weight.
func NewDefinition(kind enums.LedgerKind, counterKind enums.CounterKind, counted []enums.LedgerStatus, rules []Rule) (Definition, error) {
	if !kind.IsValid() {
		return Definition{}, fmt.Errorf("invalid ledger kind %q", kind)
	}
	if !counterKind.IsValid() {
		return Definition{}, fmt.Errorf("invalid counter kind %q", counterKind)
	}
	def := Definition{
		kind:        kind,
		counterKind: counterKind,
		table:       make(map[enums.LedgerStatus]map[Action]Transition),
		counted:     make(map[enums.LedgerStatus]bool, len(counted)),
		rules:       append([]Rule(nil), rules...),
	}
	for _, status := range counted {
		if !status.IsValid() {
			return Definition{}, fmt.Errorf("counted status %q is not persistable", status)
		}
		def.counted[status] = true
	}
	for _, rule := range rules {
		if rule.Action == "" {
			return Definition{}, fmt.Errorf("rule from %s has no action", rule.From)
		}
		if !rule.To.IsValid() {
			return Definition{}, fmt.Errorf("rule %s/%s targets invalid status %q", rule.From, rule.Action, rule.To)
		}
		if rule.From != enums.LedgerStatusNone && !rule.From.IsValid() {
			return Definition{}, fmt.Errorf("rule %s starts from invalid status %q", rule.Action, rule.From)
		}
		row, ok := def.table[rule.From]
		if !ok {
			row = make(map[Action]Transition)
			def.table[rule.From] = row
		}
		if _, dup := row[rule.Action]; dup {
			return Definition{}, fmt.Errorf("duplicate rule %s/%s", rule.From, rule.Action)
		}
		row[rule.Action] = Transition{To: rule.To, Effect: rule.Effect}
	}
	return def, nil
}

// MustDefinition is NewDefinition for package-level tables.
func MustDefinition(kind enums.LedgerKind, counterKind enums.CounterKind, counted []enums.LedgerStatus, rules []Rule) Definition {
	def, err := NewDefinition(kind, counterKind, counted, rules)
	if err != nil {
		panic(err)
	}
	return def
}

func (d Definition) Kind() enums.LedgerKind {
	return d.kind
}

func (d Definition) CounterKind() enums.CounterKind {
	return d.counterKind
}

// Lookup returns the transition for (from, action).
func (d Definition) Lookup(from enums.LedgerStatus, action Action) (Transition, bool) {
	row, ok := d.table[from]
	if !ok {
		return Transition{}, false
	}
	t, ok := row[action]
	return t, ok
}

// Creates reports whether action may create a ledger from the none state.
func (d Definition) Creates(action Action) bool {
	_, ok := d.Lookup(enums.LedgerStatusNone, action)
	return ok
}

// Counted reports whether ledgers in status contribute to the counter.
func (d Definition) Counted(status enums.LedgerStatus) bool {
	return d.counted[status]
}

// CountedStatuses returns the counted statuses in a stable order.
func (d Definition) CountedStatuses() []enums.LedgerStatus {
	out := make([]enums.LedgerStatus, 0, len(d.counted))
	for status := range d.counted {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rules returns a copy of the table rows.
func (d Definition) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Actions returns every action the table knows, sorted.
func (d Definition) Actions() []Action {
	seen := make(map[Action]struct{})
	for _, rule := range d.rules {
		seen[rule.Action] = struct{}{}
	}
	out := make([]Action, 0, len(seen))
	for action := range seen {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// States returns the none pseudo-state plus every status the table mentions.
func (d Definition) States() []enums.LedgerStatus {
	seen := map[enums.LedgerStatus]struct{}{enums.LedgerStatusNone: {}}
	for _, rule := range d.rules {
		seen[rule.From] = struct{}{}
		seen[rule.To] = struct{}{}
	}
	out := make([]enums.LedgerStatus, 0, len(seen))
	for status := range seen {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EventRegistration governs an alumnus' seat at an event.
var EventRegistration = MustDefinition(
	enums.LedgerKindEventRegistration,
	enums.CounterKindEvent,
	[]enums.LedgerStatus{enums.LedgerStatusRegistered, enums.LedgerStatusAttended},
	[]Rule{
		{From: enums.LedgerStatusNone, Action: ActionRegister, To: enums.LedgerStatusRegistered, Effect: EffectReserve},
		{From: enums.LedgerStatusRegistered, Action: ActionMarkAttended, To: enums.LedgerStatusAttended, Effect: EffectNone},
		{From: enums.LedgerStatusRegistered, Action: ActionCancel, To: enums.LedgerStatusCancelled, Effect: EffectRelease},
		{From: enums.LedgerStatusCancelled, Action: ActionRegister, To: enums.LedgerStatusRegistered, Effect: EffectReserve},
		{From: enums.LedgerStatusAttended, Action: ActionCancel, To: enums.LedgerStatusCancelled, Effect: EffectRelease},
	},
)

// MentorshipConnection governs a mentee's slot with a mentor. Only active
// connections hold a slot.
var MentorshipConnection = MustDefinition(
	enums.LedgerKindMentorshipConnection,
	enums.CounterKindMentor,
	[]enums.LedgerStatus{enums.LedgerStatusActive},
	[]Rule{
		{From: enums.LedgerStatusNone, Action: ActionRequest, To: enums.LedgerStatusPending, Effect: EffectNone},
		{From: enums.LedgerStatusPending, Action: ActionAccept, To: enums.LedgerStatusActive, Effect: EffectReserve},
		{From: enums.LedgerStatusActive, Action: ActionComplete, To: enums.LedgerStatusCompleted, Effect: EffectRelease},
		{From: enums.LedgerStatusPending, Action: ActionCancel, To: enums.LedgerStatusCancelled, Effect: EffectNone},
		{From: enums.LedgerStatusActive, Action: ActionCancel, To: enums.LedgerStatusCancelled, Effect: EffectRelease},
		{From: enums.LedgerStatusCancelled, Action: ActionRequest, To: enums.LedgerStatusPending, Effect: EffectNone},
	},
)

// Donation governs one gift to a campaign. The subject is the donation
// reference and the weight is the amount in cents, so completing the same
// donation twice cannot double count.
var Donation = MustDefinition(
	enums.LedgerKindDonation,
	enums.CounterKindCampaign,
	[]enums.LedgerStatus{enums.LedgerStatusCompleted},
	[]Rule{
		{From: enums.LedgerStatusNone, Action: ActionPledge, To: enums.LedgerStatusPending, Effect: EffectNone},
		{From: enums.LedgerStatusPending, Action: ActionComplete, To: enums.LedgerStatusCompleted, Effect: EffectAccumulate},
		{From: enums.LedgerStatusPending, Action: ActionFail, To: enums.LedgerStatusFailed, Effect: EffectNone},
		{From: enums.LedgerStatusCompleted, Action: ActionRefund, To: enums.LedgerStatusRefunded, Effect: EffectDeduct},
	},
)

// Definitions lists every built-in ledger kind.
func Definitions() []Definition {
	return []Definition{EventRegistration, MentorshipConnection, Donation}
}
