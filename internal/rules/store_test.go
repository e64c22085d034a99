package rules

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mailrules/internal/model"
)

const validRuleDoc = `[
  {
    "predicate": "All",
    "conditions": [
      {"field": "From", "predicate": "Contains", "value": "test@example.com"},
      {"field": "Subject", "predicate": "Contains", "value": "important"}
    ],
    "actions": [
      {"type": "mark_read", "value": true}
    ]
  }
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoader() *Loader {
	return NewLoader(DefaultVocabulary(), discardLogger())
}

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantCount int
	}{
		{name: "list with one rule", doc: validRuleDoc, wantCount: 1},
		{
			name:      "single rule object",
			doc:       `{"predicate": "Any", "conditions": [{"field": "To", "predicate": "Equals", "value": "me@example.com"}], "actions": [{"type": "mark_unread"}]}`,
			wantCount: 1,
		},
		{name: "invalid json", doc: `invalid json content`, wantCount: 0},
		{name: "top level string", doc: `"rules"`, wantCount: 0},
		{name: "top level number", doc: `42`, wantCount: 0},
		{name: "empty list", doc: `[]`, wantCount: 0},
		{
			name: "invalid rules are dropped, valid kept",
			doc: `[
				{"predicate": "All", "conditions": [], "actions": []},
				{"predicate": "Bogus", "conditions": [], "actions": []},
				"not a rule",
				{"predicate": "Any", "conditions": [{"field": "From", "predicate": "Equals", "value": "a@b.c"}], "actions": [{"type": "move_message", "value": "X"}]}
			]`,
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRulesFile(t, tt.doc)
			got := newTestLoader().Load(FileSource(path))
			if diff := cmp.Diff(tt.wantCount, len(got)); diff != "" {
				t.Errorf("rule count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoaderLoadMissingSource(t *testing.T) {
	l := newTestLoader()

	got := l.Load(FileSource(filepath.Join(t.TempDir(), "non_existent_file.json")))
	if len(got) != 0 {
		t.Errorf("expected empty set for missing file, got %d rules", len(got))
	}
	if got == nil {
		t.Error("expected non-nil empty set")
	}

	if got := l.Load(nil); len(got) != 0 {
		t.Errorf("expected empty set for nil source, got %d rules", len(got))
	}
}

func TestLoaderPreservesOrder(t *testing.T) {
	doc := `[
		{"predicate": "All", "conditions": [{"field": "From", "predicate": "Contains", "value": "first"}], "actions": []},
		{"predicate": "Nope", "conditions": [], "actions": []},
		{"predicate": "Any", "conditions": [{"field": "From", "predicate": "Contains", "value": "second"}], "actions": []}
	]`
	got := newTestLoader().Parse([]byte(doc))

	var values []string
	for _, r := range got {
		values = append(values, r.Conditions[0].Value)
	}
	if diff := cmp.Diff([]string{"first", "second"}, values); diff != "" {
		t.Errorf("rule order mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSummaryRoundTrip(t *testing.T) {
	store := NewStore(newTestLoader(), BytesSource(validRuleDoc))

	want := model.Summary{
		TotalRules: 1,
		Rules: []model.RuleInfo{
			{
				ID:              1,
				Predicate:       model.CombineAll,
				ConditionsCount: 2,
				ActionsCount:    1,
				Conditions: []model.Condition{
					{Field: model.FieldFrom, Predicate: model.PredContains, Value: "test@example.com"},
					{Field: model.FieldSubject, Predicate: model.PredContains, Value: "important"},
				},
				Actions: []model.Action{model.MarkRead(true)},
			},
		},
	}
	if diff := cmp.Diff(want, store.Summary()); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreReload(t *testing.T) {
	path := writeRulesFile(t, validRuleDoc)
	store := NewStore(newTestLoader(), FileSource(path))
	if got := len(store.Rules()); got != 1 {
		t.Fatalf("initial rule count = %d, want 1", got)
	}

	two := `[
		{"predicate": "All", "conditions": [], "actions": []},
		{"predicate": "Any", "conditions": [], "actions": []}
	]`
	if err := os.WriteFile(path, []byte(two), 0o600); err != nil {
		t.Fatalf("rewrite rules: %v", err)
	}
	if got := store.Reload(); got != 2 {
		t.Errorf("Reload() = %d, want 2", got)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("rewrite rules: %v", err)
	}
	if got := store.Reload(); got != 0 {
		t.Errorf("Reload() of broken document = %d, want 0", got)
	}

	if got := store.ReloadFrom(BytesSource(validRuleDoc)); got != 1 {
		t.Errorf("ReloadFrom() = %d, want 1", got)
	}
	if got := store.Reload(); got != 1 {
		t.Errorf("Reload() after ReloadFrom = %d, want 1", got)
	}
}

func TestStoreReloadIsAtomic(t *testing.T) {
	oneRule := BytesSource(validRuleDoc)
	threeRules := BytesSource(`[
		{"predicate": "All", "conditions": [], "actions": []},
		{"predicate": "All", "conditions": [], "actions": []},
		{"predicate": "All", "conditions": [], "actions": []}
	]`)

	store := NewStore(newTestLoader(), oneRule)

	var stop atomic.Bool
	var bad atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				if n := len(store.Rules()); n != 1 && n != 3 {
					bad.Add(1)
				}
			}
		}()
	}

	for i := range 200 {
		if i%2 == 0 {
			store.ReloadFrom(threeRules)
		} else {
			store.ReloadFrom(oneRule)
		}
	}
	stop.Store(true)
	wg.Wait()

	if n := bad.Load(); n != 0 {
		t.Errorf("observed %d reads with a rule count outside {1, 3}", n)
	}
}

// gatedSource blocks reads once armed until release is closed.
type gatedSource struct {
	doc     []byte
	armed   atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) ReadRules() ([]byte, error) {
	if g.armed.Load() {
		close(g.started)
		<-g.release
	}
	return g.doc, nil
}

func TestStoreReloadFromWinsOverSlowReload(t *testing.T) {
	old := &gatedSource{
		doc:     []byte(validRuleDoc),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := NewStore(newTestLoader(), old)
	old.armed.Store(true)

	newer := BytesSource(`[
		{"predicate": "All", "conditions": [], "actions": []},
		{"predicate": "Any", "conditions": [], "actions": []}
	]`)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		store.Reload()
	}()
	<-old.started
	go func() {
		defer wg.Done()
		store.ReloadFrom(newer)
	}()
	time.Sleep(20 * time.Millisecond)
	close(old.release)
	wg.Wait()

	if got := len(store.Rules()); got != 2 {
		t.Errorf("rule count = %d, want 2 from the newer source", got)
	}
	if got := store.Reload(); got != 2 {
		t.Errorf("Reload() = %d, want 2 from the newer source", got)
	}
}
