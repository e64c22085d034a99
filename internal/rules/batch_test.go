package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mailrules/internal/model"
)

func batchFixture() ([]model.Email, model.RuleSet) {
	var emails []model.Email
	for i := range 23 {
		from := "someone@other.org"
		if i%3 == 0 {
			from = fmt.Sprintf("user%d@example.com", i)
		}
		subject := "hello"
		if i%4 == 0 {
			subject = "Invoice attached"
		}
		emails = append(emails, model.Email{
			ID:         fmt.Sprintf("msg-%02d", i),
			From:       from,
			Subject:    subject,
			ReceivedAt: fixedNow.Add(-24 * time.Duration(i) * time.Hour),
		})
	}

	set := model.RuleSet{
		{
			Predicate:  model.CombineAll,
			Conditions: []model.Condition{{Field: model.FieldFrom, Predicate: model.PredContains, Value: "@example.com"}},
			Actions:    []model.Action{model.MarkRead(true)},
		},
		{
			Predicate: model.CombineAny,
			Conditions: []model.Condition{
				{Field: model.FieldSubject, Predicate: model.PredContains, Value: "invoice"},
				{Field: model.FieldReceived, Predicate: model.PredLessThan, Value: "20 days"},
			},
			Actions: []model.Action{model.MoveMessage("Billing")},
		},
		{
			Predicate:  model.CombineAll,
			Conditions: []model.Condition{{Field: model.FieldSubject, Predicate: model.PredEquals, Value: "nothing matches this"}},
		},
		{Predicate: model.CombineAll},
	}
	return emails, set
}

func TestRunLabelsAndCounts(t *testing.T) {
	emails, set := batchFixture()
	got := newTestEvaluator().Run(emails, set)

	if len(got) != len(set) {
		t.Fatalf("Run() returned %d results, want %d", len(got), len(set))
	}

	type labelCount struct {
		Label string
		Count int
	}
	var summary []labelCount
	for _, m := range got {
		if m.Count != len(m.Emails) {
			t.Errorf("%s: Count = %d but %d emails", m.Label, m.Count, len(m.Emails))
		}
		summary = append(summary, labelCount{m.Label, m.Count})
	}

	// rule_2: invoices at 0,4,...,20 plus 21 and 22 by age.
	want := []labelCount{
		{"rule_1", 8},
		{"rule_2", 8},
		{"rule_3", 0},
		{"rule_4", 0},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("Run() summary mismatch (-want +got):\n%s", diff)
	}

	if m, ok := got.ByLabel("rule_2"); !ok || m.Rule.Actions[0] != model.MoveMessage("Billing") {
		t.Errorf("ByLabel(rule_2) = %+v, %v", m, ok)
	}
	if diff := cmp.Diff(16, got.TotalMatched()); diff != "" {
		t.Errorf("TotalMatched() mismatch (-want +got):\n%s", diff)
	}
}

func TestRunEmptyInputs(t *testing.T) {
	e := newTestEvaluator()
	_, set := batchFixture()

	got := e.Run(nil, set)
	for _, m := range got {
		if m.Count != 0 || len(m.Emails) != 0 {
			t.Errorf("%s: expected no matches on empty input, got %d", m.Label, m.Count)
		}
	}

	emails, _ := batchFixture()
	if got := e.Run(emails, nil); len(got) != 0 {
		t.Errorf("Run() with no rules returned %d results", len(got))
	}
}

func TestRunChunkedMatchesRun(t *testing.T) {
	emails, set := batchFixture()
	e := newTestEvaluator()
	want := e.Run(emails, set)

	for _, chunk := range []int{-1, 0, 1, 2, 5, 7, 22, 23, 100} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			got := e.RunChunked(emails, set, chunk)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("RunChunked() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunConcurrentMatchesRun(t *testing.T) {
	emails, set := batchFixture()
	e := newTestEvaluator()
	want := e.Run(emails, set)

	for _, workers := range []int{0, 1, 2, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got, err := e.RunConcurrent(context.Background(), emails, set, workers)
			if err != nil {
				t.Fatalf("RunConcurrent() error: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("RunConcurrent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunConcurrentCancelled(t *testing.T) {
	emails, set := batchFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEvaluator().RunConcurrent(ctx, emails, set, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunConcurrent() error = %v, want context.Canceled", err)
	}
}
