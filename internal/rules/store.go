package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"mailrules/internal/model"
)

// Source supplies the raw rules document.
type Source interface {
	ReadRules() ([]byte, error)
}

// FileSource reads rules from a file path.
type FileSource string

// ReadRules reads the whole file.
func (f FileSource) ReadRules() ([]byte, error) {
	return os.ReadFile(string(f))
}

// BytesSource serves an in-memory document.
type BytesSource []byte

// ReadRules returns the document.
func (b BytesSource) ReadRules() ([]byte, error) {
	return b, nil
}

// Loader turns rules documents into validated rule sets.
type Loader struct {
	vocab *Vocabulary
	log   *slog.Logger
}

// NewLoader creates a Loader for the given vocabulary.
func NewLoader(vocab *Vocabulary, log *slog.Logger) *Loader {
	return &Loader{vocab: vocab, log: log}
}

// Load reads and validates the document from src. It never fails: any
// problem reading or decoding the source yields an empty set and a log entry.
func (l *Loader) Load(src Source) model.RuleSet {
	if src == nil {
		l.log.Warn("no rules source configured")
		return model.RuleSet{}
	}
	data, err := src.ReadRules()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.log.Warn("rules file not found", "source", fmt.Sprint(src))
		} else {
			l.log.Error("read rules", "error", err)
		}
		return model.RuleSet{}
	}
	return l.Parse(data)
}

// Parse validates a rules document held in memory. The document is either a
// single rule object or a list of rule objects; invalid rules are dropped.
func (l *Loader) Parse(data []byte) model.RuleSet {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		l.log.Error("parse rules document", "error", err)
		return model.RuleSet{}
	}

	var candidates []any
	switch d := doc.(type) {
	case []any:
		candidates = d
	case map[string]any:
		candidates = []any{d}
	default:
		l.log.Error("parse rules document", "error", ErrInvalidDocument)
		return model.RuleSet{}
	}

	set := make(model.RuleSet, 0, len(candidates))
	for i, c := range candidates {
		rule, err := l.vocab.ValidateRule(c)
		if err != nil {
			l.log.Warn("invalid rule skipped", "position", i+1, "error", err)
			continue
		}
		set = append(set, rule)
	}
	l.log.Info("loaded rules", "count", len(set), "skipped", len(candidates)-len(set))
	return set
}

// Store holds the active rule set. Readers always observe a complete set;
// reloads build the new set before swapping it in.
type Store struct {
	loader  *Loader
	current atomic.Pointer[model.RuleSet]

	// mu serialises reloads; readers only touch current.
	mu     sync.Mutex
	source Source
}

// NewStore creates a Store and loads src immediately.
func NewStore(loader *Loader, src Source) *Store {
	s := &Store{loader: loader}
	s.ReloadFrom(src)
	return s
}

// Rules returns the current rule set. Callers must not modify it.
func (s *Store) Rules() model.RuleSet {
	return *s.current.Load()
}

// Reload re-reads the configured source and replaces the rule set.
// It returns the number of rules now active.
func (s *Store) Reload() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swap(s.source)
}

// ReloadFrom switches to a new source and loads it.
func (s *Store) ReloadFrom(src Source) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	return s.swap(src)
}

func (s *Store) swap(src Source) int {
	set := s.loader.Load(src)
	s.current.Store(&set)
	return len(set)
}

// Summary describes the current rule set.
func (s *Store) Summary() model.Summary {
	return Summarize(s.Rules())
}

// Summarize describes a rule set.
func Summarize(set model.RuleSet) model.Summary {
	sum := model.Summary{TotalRules: len(set), Rules: make([]model.RuleInfo, 0, len(set))}
	for i, r := range set {
		sum.Rules = append(sum.Rules, model.RuleInfo{
			ID:              i + 1,
			Predicate:       r.Predicate,
			ConditionsCount: len(r.Conditions),
			ActionsCount:    len(r.Actions),
			Conditions:      r.Conditions,
			Actions:         r.Actions,
		})
	}
	return sum
}
