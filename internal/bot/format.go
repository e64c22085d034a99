package bot

import (
	"fmt"
	"strings"
	"time"

	"mailrules/internal/model"
	"mailrules/internal/processor"
)

// FormatRuleList formats the loaded rules for display.
func FormatRuleList(sum model.Summary) string {
	if sum.TotalRules == 0 {
		return "No rules loaded. Check the rules file and use /reload."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Loaded rules: %d\n", sum.TotalRules)
	for _, r := range sum.Rules {
		fmt.Fprintf(&b, "\n#%d %s of %d condition(s) -> %s\n",
			r.ID, r.Predicate, r.ConditionsCount, actionList(r.Actions))
	}
	return b.String()
}

// FormatRule formats the conditions and actions of rule number n.
func FormatRule(n int, r model.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule #%d (%s)\n", n, combinatorLabel(r.Predicate))
	b.WriteString("\nConditions:\n")
	for _, c := range r.Conditions {
		fmt.Fprintf(&b, "  %s %s %q\n", c.Field, strings.ToLower(string(c.Predicate)), c.Value)
	}
	b.WriteString("\nActions:\n")
	for _, a := range r.Actions {
		fmt.Fprintf(&b, "  %s\n", actionLabel(a))
	}
	return b.String()
}

// FormatRunResult formats the outcome of a processing run.
func FormatRunResult(s processor.Stats, err error) string {
	if err != nil {
		return fmt.Sprintf("Processing failed: %v", err)
	}
	var b strings.Builder
	b.WriteString("Processing completed")
	if s.TimedOut {
		b.WriteString(" (stopped at time limit)")
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Emails processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "Emails matched: %d\n", s.Matched)
	fmt.Fprintf(&b, "Actions executed: %d\n", s.ActionsExecuted)
	if s.ActionsFailed > 0 {
		fmt.Fprintf(&b, "Actions failed: %d\n", s.ActionsFailed)
	}
	fmt.Fprintf(&b, "Rules: %d\n", s.RulesProcessed)
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Run: %s", s.RunID)
	return b.String()
}

// FormatStatus formats storage and rule counts with the last run, if any.
func FormatStatus(emails, rules int, last *processor.Stats, lastErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stored emails: %d\n", emails)
	fmt.Fprintf(&b, "Loaded rules: %d\n", rules)
	switch {
	case last == nil:
		b.WriteString("Last run: none yet")
	case lastErr != nil:
		fmt.Fprintf(&b, "Last run failed: %v", lastErr)
	default:
		fmt.Fprintf(&b, "Last run: %d processed, %d matched, %d actions (%s)",
			last.Processed, last.Matched, last.ActionsExecuted, last.RunID)
	}
	return b.String()
}

func actionList(actions []model.Action) string {
	labels := make([]string, len(actions))
	for i, a := range actions {
		labels[i] = actionLabel(a)
	}
	return strings.Join(labels, ", ")
}

func actionLabel(a model.Action) string {
	switch a.Type {
	case model.ActionMarkRead:
		if a.Read != nil && !*a.Read {
			return "mark as unread"
		}
		return "mark as read"
	case model.ActionMarkUnread:
		return "mark as unread"
	case model.ActionMoveMessage:
		return fmt.Sprintf("move to %q", a.Destination)
	default:
		return string(a.Type)
	}
}

func combinatorLabel(c model.Combinator) string {
	if c == model.CombineAny {
		return "any condition"
	}
	return "all conditions"
}
