package rules

import (
	"log/slog"
	"strings"
	"time"

	"mailrules/internal/model"
)

// Evaluator matches rules against emails. It holds no mutable state and is
// safe for concurrent use.
type Evaluator struct {
	vocab *Vocabulary
	now   func() time.Time
	log   *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator over the given vocabulary.
func NewEvaluator(vocab *Vocabulary, log *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{vocab: vocab, now: time.Now, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateCondition reports whether email satisfies cond. Any failure,
// such as an unparseable date, evaluates to false.
func (e *Evaluator) EvaluateCondition(cond model.Condition, email model.Email) bool {
	spec, ok := e.vocab.Field(cond.Field)
	if !ok {
		e.log.Warn("unknown condition field", "field", cond.Field)
		return false
	}
	if spec.Kind == KindDate {
		return e.checkDate(email, cond.Predicate, cond.Value)
	}
	return e.checkText(spec.Get(email), cond.Predicate, cond.Value)
}

func (e *Evaluator) checkText(fieldValue string, pred model.Predicate, value string) bool {
	text := fold(fieldValue)
	want := fold(value)

	switch pred {
	case model.PredContains:
		return strings.Contains(text, want)
	case model.PredDoesNotContain:
		return !strings.Contains(text, want)
	case model.PredEquals:
		return text == want
	case model.PredDoesNotEqual:
		return text != want
	default:
		e.log.Warn("unknown text predicate", "predicate", pred)
		return false
	}
}

func (e *Evaluator) checkDate(email model.Email, pred model.Predicate, value string) bool {
	received := email.ReceivedAt
	if received.IsZero() {
		t, err := ParseReceived(email.Received)
		if err != nil {
			e.log.Debug("unparseable received date", "email_id", email.ID, "error", err)
			return false
		}
		received = t
	}

	days, err := ParseRelative(value, e.vocab.DaysPerMonth())
	if err != nil {
		e.log.Warn("invalid relative date", "value", value, "error", err)
		return false
	}
	threshold := e.now().AddDate(0, 0, -days)

	switch pred {
	case model.PredLessThan:
		return received.Before(threshold)
	case model.PredGreaterThan:
		return received.After(threshold)
	default:
		e.log.Warn("unknown date predicate", "predicate", pred)
		return false
	}
}

// Matches reports whether email satisfies rule. A rule without conditions
// matches nothing, whichever combinator it uses.
func (e *Evaluator) Matches(rule model.Rule, email model.Email) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	switch rule.Predicate {
	case model.CombineAll:
		for _, c := range rule.Conditions {
			if !e.EvaluateCondition(c, email) {
				return false
			}
		}
		return true
	case model.CombineAny:
		for _, c := range rule.Conditions {
			if e.EvaluateCondition(c, email) {
				return true
			}
		}
		return false
	default:
		e.log.Warn("unknown rule predicate", "predicate", rule.Predicate)
		return false
	}
}

// FilterMatching returns the emails matching rule, in input order.
func (e *Evaluator) FilterMatching(emails []model.Email, rule model.Rule) []model.Email {
	var matched []model.Email
	for _, em := range emails {
		if e.Matches(rule, em) {
			matched = append(matched, em)
		}
	}
	return matched
}
