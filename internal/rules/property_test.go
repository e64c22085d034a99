package rules

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mailrules/internal/model"
)

var textFields = []model.Field{model.FieldFrom, model.FieldTo, model.FieldSubject, model.FieldMessage}

func genTextField() gopter.Gen {
	return gen.IntRange(0, len(textFields)-1).Map(func(i int) model.Field { return textFields[i] })
}

func emailWith(field model.Field, text string) model.Email {
	em := model.Email{ID: "prop"}
	switch field {
	case model.FieldFrom:
		em.From = text
	case model.FieldTo:
		em.To = text
	case model.FieldSubject:
		em.Subject = text
	case model.FieldMessage:
		em.Message = text
	}
	return em
}

func TestEvaluateCondition_PropertyNegationPairs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := newTestEvaluator()

	properties.Property("Contains and Does not Contain are complementary", prop.ForAll(
		func(field model.Field, text, value string) bool {
			em := emailWith(field, text)
			pos := e.EvaluateCondition(model.Condition{Field: field, Predicate: model.PredContains, Value: value}, em)
			neg := e.EvaluateCondition(model.Condition{Field: field, Predicate: model.PredDoesNotContain, Value: value}, em)
			return pos != neg
		},
		genTextField(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("Equals and Does not equal are complementary", prop.ForAll(
		func(field model.Field, text, value string) bool {
			em := emailWith(field, text)
			pos := e.EvaluateCondition(model.Condition{Field: field, Predicate: model.PredEquals, Value: value}, em)
			neg := e.EvaluateCondition(model.Condition{Field: field, Predicate: model.PredDoesNotEqual, Value: value}, em)
			return pos != neg
		},
		genTextField(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestEvaluateCondition_PropertyCaseInsensitive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := newTestEvaluator()

	properties.Property("changing letter case never changes the outcome", prop.ForAll(
		func(field model.Field, text, value string, equals bool) bool {
			pred := model.PredContains
			if equals {
				pred = model.PredEquals
			}
			cond := model.Condition{Field: field, Predicate: pred, Value: value}
			upper := model.Condition{Field: field, Predicate: pred, Value: strings.ToUpper(value)}

			base := e.EvaluateCondition(cond, emailWith(field, text))
			return base == e.EvaluateCondition(upper, emailWith(field, strings.ToLower(text))) &&
				base == e.EvaluateCondition(cond, emailWith(field, strings.ToUpper(text)))
		},
		genTextField(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("a value is always contained in itself", prop.ForAll(
		func(field model.Field, text string) bool {
			cond := model.Condition{Field: field, Predicate: model.PredContains, Value: strings.ToUpper(text)}
			return e.EvaluateCondition(cond, emailWith(field, text))
		},
		genTextField(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestMatches_PropertyCombinators(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := newTestEvaluator()

	conditionsFor := func(patterns []string) []model.Condition {
		conds := make([]model.Condition, len(patterns))
		for i, p := range patterns {
			conds[i] = model.Condition{Field: model.FieldSubject, Predicate: model.PredContains, Value: p}
		}
		return conds
	}

	properties.Property("All is the conjunction of its conditions", prop.ForAll(
		func(subject string, patterns []string) bool {
			em := model.Email{Subject: subject}
			conds := conditionsFor(patterns)
			want := len(conds) > 0
			for _, c := range conds {
				want = want && e.EvaluateCondition(c, em)
			}
			return e.Matches(model.Rule{Predicate: model.CombineAll, Conditions: conds}, em) == want
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("Any is the disjunction of its conditions", prop.ForAll(
		func(subject string, patterns []string) bool {
			em := model.Email{Subject: subject}
			conds := conditionsFor(patterns)
			want := false
			for _, c := range conds {
				want = want || e.EvaluateCondition(c, em)
			}
			return e.Matches(model.Rule{Predicate: model.CombineAny, Conditions: conds}, em) == want
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("a rule without conditions matches nothing", prop.ForAll(
		func(subject string, useAny bool) bool {
			pred := model.CombineAll
			if useAny {
				pred = model.CombineAny
			}
			return !e.Matches(model.Rule{Predicate: pred}, model.Email{Subject: subject})
		},
		gen.AnyString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestEvaluateCondition_PropertyDateThresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := newTestEvaluator()

	properties.Property("off the boundary exactly one of Less than and Greater than holds", prop.ForAll(
		func(ageDays, n int, months bool) bool {
			// Half a day keeps the received time off the threshold.
			em := model.Email{ReceivedAt: fixedNow.Add(-time.Duration(ageDays)*24*time.Hour - 12*time.Hour)}
			unit := "days"
			if months {
				unit = "months"
			}
			value := strconv.Itoa(n) + " " + unit
			older := e.EvaluateCondition(model.Condition{Field: model.FieldReceived, Predicate: model.PredLessThan, Value: value}, em)
			newer := e.EvaluateCondition(model.Condition{Field: model.FieldReceived, Predicate: model.PredGreaterThan, Value: value}, em)

			span := n
			if months {
				span = n * 30
			}
			return older != newer && older == (ageDays >= span)
		},
		gen.IntRange(0, 400),
		gen.IntRange(0, 12),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestValidateRule_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	vocab := DefaultVocabulary()
	textPreds := []model.Predicate{model.PredContains, model.PredDoesNotContain, model.PredEquals, model.PredDoesNotEqual}

	properties.Property("a serialised valid rule validates back to itself", prop.ForAll(
		func(field model.Field, predIdx int, value, dest string, read, useAny bool) bool {
			combinator := model.CombineAll
			if useAny {
				combinator = model.CombineAny
			}
			rule := model.Rule{
				Predicate: combinator,
				Conditions: []model.Condition{
					{Field: field, Predicate: textPreds[predIdx], Value: value},
					{Field: model.FieldReceived, Predicate: model.PredLessThan, Value: "3 days"},
				},
				Actions: []model.Action{model.MarkRead(read), model.MoveMessage(dest), model.MarkUnread()},
			}
			data, err := json.Marshal(rule)
			if err != nil {
				return false
			}
			var raw any
			if err := json.Unmarshal(data, &raw); err != nil {
				return false
			}
			got, err := vocab.ValidateRule(raw)
			if err != nil {
				return false
			}
			return ruleEqual(rule, got)
		},
		genTextField(),
		gen.IntRange(0, len(textPreds)-1),
		gen.AnyString(),
		gen.AlphaString(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func ruleEqual(a, b model.Rule) bool {
	if a.Predicate != b.Predicate || len(a.Conditions) != len(b.Conditions) || len(a.Actions) != len(b.Actions) {
		return false
	}
	for i := range a.Conditions {
		if a.Conditions[i] != b.Conditions[i] {
			return false
		}
	}
	for i := range a.Actions {
		if a.Actions[i].String() != b.Actions[i].String() {
			return false
		}
	}
	return true
}
