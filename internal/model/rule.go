package model

import (
	"encoding/json"
	"fmt"
)

// Field names a record attribute a condition can test.
type Field string

// Supported condition fields.
const (
	FieldFrom     Field = "From"
	FieldTo       Field = "To"
	FieldSubject  Field = "Subject"
	FieldMessage  Field = "Message"
	FieldReceived Field = "Received"
)

// Predicate is the comparison a condition applies.
type Predicate string

// Text predicates.
const (
	PredContains       Predicate = "Contains"
	PredDoesNotContain Predicate = "Does not Contain"
	PredEquals         Predicate = "Equals"
	PredDoesNotEqual   Predicate = "Does not equal"
)

// Date predicates.
const (
	PredLessThan    Predicate = "Less than"
	PredGreaterThan Predicate = "Greater than"
)

// predicateAliases maps accepted alternate spellings to canonical names.
var predicateAliases = map[string]Predicate{
	"DoesNotContain": PredDoesNotContain,
	"DoesNotEqual":   PredDoesNotEqual,
	"LessThan":       PredLessThan,
	"GreaterThan":    PredGreaterThan,
}

// CanonicalPredicate normalises alternate predicate spellings.
func CanonicalPredicate(s string) Predicate {
	if p, ok := predicateAliases[s]; ok {
		return p
	}
	return Predicate(s)
}

// Combinator joins the results of a rule's conditions.
type Combinator string

// Supported combinators.
const (
	CombineAll Combinator = "All"
	CombineAny Combinator = "Any"
)

// ActionType names an action executed on matching emails.
type ActionType string

// Supported actions.
const (
	ActionMarkRead    ActionType = "mark_read"
	ActionMarkUnread  ActionType = "mark_unread"
	ActionMoveMessage ActionType = "move_message"
)

// Condition is a single field/predicate/value test.
type Condition struct {
	Field     Field     `json:"field"`
	Predicate Predicate `json:"predicate"`
	Value     string    `json:"value"`
}

// Action is one side effect of a rule. Read is set for mark_read,
// Destination for move_message.
type Action struct {
	Type        ActionType
	Read        *bool
	Destination string
}

// MarkRead returns a mark_read action with the given value.
func MarkRead(read bool) Action {
	return Action{Type: ActionMarkRead, Read: &read}
}

// MarkUnread returns a mark_unread action.
func MarkUnread() Action {
	return Action{Type: ActionMarkUnread}
}

// MoveMessage returns a move_message action targeting dest.
func MoveMessage(dest string) Action {
	return Action{Type: ActionMoveMessage, Destination: dest}
}

// String renders the action for logs and the action log table.
func (a Action) String() string {
	switch a.Type {
	case ActionMarkRead:
		if a.Read != nil {
			return fmt.Sprintf("mark_read_%t", *a.Read)
		}
	case ActionMoveMessage:
		return "move_to_" + a.Destination
	}
	return string(a.Type)
}

type actionJSON struct {
	Type  ActionType `json:"type"`
	Value any        `json:"value,omitempty"`
}

// MarshalJSON writes the {type, value} document form.
func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{Type: a.Type}
	switch a.Type {
	case ActionMarkRead:
		if a.Read != nil {
			out.Value = *a.Read
		}
	case ActionMoveMessage:
		out.Value = a.Destination
	}
	return json.Marshal(out)
}

// Rule is a validated rule: conditions joined by Predicate, and the actions
// to run on every email that matches.
type Rule struct {
	Predicate  Combinator  `json:"predicate"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// RuleSet is an ordered list of validated rules. Order is load order.
type RuleSet []Rule

// RuleMatch holds the emails matched by one rule.
type RuleMatch struct {
	Label  string
	Rule   Rule
	Emails []Email
	Count  int
}

// Results are the per-rule matches of a batch run, in rule order.
type Results []RuleMatch

// ByLabel returns the match entry with the given label.
func (r Results) ByLabel(label string) (RuleMatch, bool) {
	for _, m := range r {
		if m.Label == label {
			return m, true
		}
	}
	return RuleMatch{}, false
}

// TotalMatched sums match counts across rules.
func (r Results) TotalMatched() int {
	n := 0
	for _, m := range r {
		n += m.Count
	}
	return n
}

// RuleInfo describes one loaded rule.
type RuleInfo struct {
	ID              int         `json:"id"`
	Predicate       Combinator  `json:"predicate"`
	ConditionsCount int         `json:"conditions_count"`
	ActionsCount    int         `json:"actions_count"`
	Conditions      []Condition `json:"conditions"`
	Actions         []Action    `json:"actions"`
}

// Summary describes the loaded rule set.
type Summary struct {
	TotalRules int        `json:"total_rules"`
	Rules      []RuleInfo `json:"rules"`
}
