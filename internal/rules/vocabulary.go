// Package rules loads, validates and evaluates email rules.
package rules

import (
	"strings"

	"mailrules/internal/model"
)

// FieldKind tells the evaluator how to compare a field.
type FieldKind int

// Field kinds.
const (
	KindText FieldKind = iota
	KindDate
)

// FieldSpec describes one condition field.
type FieldSpec struct {
	Kind FieldKind
	Get  func(model.Email) string
}

// Vocabulary is the closed set of fields, predicates and actions a rule may
// use. It is read-only after construction.
type Vocabulary struct {
	fields         map[model.Field]FieldSpec
	textPredicates map[model.Predicate]bool
	datePredicates map[model.Predicate]bool
	actions        map[model.ActionType]bool
	combinators    map[model.Combinator]bool
	daysPerMonth   int
}

// DefaultVocabulary returns the standard email rule vocabulary.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		fields: map[model.Field]FieldSpec{
			model.FieldFrom:     {Kind: KindText, Get: func(e model.Email) string { return e.From }},
			model.FieldTo:       {Kind: KindText, Get: func(e model.Email) string { return e.To }},
			model.FieldSubject:  {Kind: KindText, Get: func(e model.Email) string { return e.Subject }},
			model.FieldMessage:  {Kind: KindText, Get: func(e model.Email) string { return e.Message }},
			model.FieldReceived: {Kind: KindDate, Get: func(e model.Email) string { return e.Received }},
		},
		textPredicates: map[model.Predicate]bool{
			model.PredContains:       true,
			model.PredDoesNotContain: true,
			model.PredEquals:         true,
			model.PredDoesNotEqual:   true,
		},
		datePredicates: map[model.Predicate]bool{
			model.PredLessThan:    true,
			model.PredGreaterThan: true,
		},
		actions: map[model.ActionType]bool{
			model.ActionMarkRead:    true,
			model.ActionMarkUnread:  true,
			model.ActionMoveMessage: true,
		},
		combinators: map[model.Combinator]bool{
			model.CombineAll: true,
			model.CombineAny: true,
		},
		// Months are approximated; rule thresholds are tuned against this.
		daysPerMonth: 30,
	}
}

// Field returns the spec for a field name.
func (v *Vocabulary) Field(f model.Field) (FieldSpec, bool) {
	s, ok := v.fields[f]
	return s, ok
}

// AllowsPredicate reports whether p is valid for field f.
func (v *Vocabulary) AllowsPredicate(f model.Field, p model.Predicate) bool {
	spec, ok := v.fields[f]
	if !ok {
		return false
	}
	if spec.Kind == KindDate {
		return v.datePredicates[p]
	}
	return v.textPredicates[p]
}

// KnownAction reports whether t is a supported action.
func (v *Vocabulary) KnownAction(t model.ActionType) bool {
	return v.actions[t]
}

// KnownCombinator reports whether c is a supported combinator.
func (v *Vocabulary) KnownCombinator(c model.Combinator) bool {
	return v.combinators[c]
}

// DaysPerMonth is the month length used by relative date values.
func (v *Vocabulary) DaysPerMonth() int {
	return v.daysPerMonth
}

func fold(s string) string {
	return strings.ToLower(s)
}
