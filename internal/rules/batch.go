package rules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mailrules/internal/model"
)

// Run evaluates every rule in set against emails. Actions are not executed;
// the caller acts on the returned matches.
func (e *Evaluator) Run(emails []model.Email, set model.RuleSet) model.Results {
	results := make(model.Results, len(set))
	for i, rule := range set {
		matched := e.FilterMatching(emails, rule)
		results[i] = model.RuleMatch{
			Label:  model.RuleLabel(i),
			Rule:   rule,
			Emails: matched,
			Count:  len(matched),
		}
	}
	return results
}

// RunChunked evaluates emails in slices of size chunk and merges the
// matches per rule. A chunk size of zero or less evaluates everything at once.
func (e *Evaluator) RunChunked(emails []model.Email, set model.RuleSet, chunk int) model.Results {
	if chunk <= 0 || chunk >= len(emails) {
		return e.Run(emails, set)
	}

	results := e.Run(nil, set)
	for start := 0; start < len(emails); start += chunk {
		end := min(start+chunk, len(emails))
		part := e.Run(emails[start:end], set)
		for i := range part {
			results[i].Emails = append(results[i].Emails, part[i].Emails...)
			results[i].Count += part[i].Count
		}
		e.log.Debug("evaluated chunk", "from", start+1, "to", end)
	}
	return results
}

// RunConcurrent evaluates rules in parallel with at most workers goroutines.
// The result is identical to Run.
func (e *Evaluator) RunConcurrent(ctx context.Context, emails []model.Email, set model.RuleSet, workers int) (model.Results, error) {
	results := make(model.Results, len(set))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, rule := range set {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			matched := e.FilterMatching(emails, rule)
			results[i] = model.RuleMatch{
				Label:  model.RuleLabel(i),
				Rule:   rule,
				Emails: matched,
				Count:  len(matched),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
