// Package rules implements the Rule Store: the in-memory declarative rule
// set indexed by (source, group). It knows nothing about VIFs or the
// kernel; it only enforces the uniqueness of its key and preserves
// insertion order for deterministic snapshots and byte-stable persistence.
package rules

import "github.com/marmos91/mfcd/pkg/mfcerr"

// Rule is the user-visible forwarding statement: deliver traffic from
// Source arriving on IIF to every interface in OIFs, for multicast Group.
type Rule struct {
	Source string
	Group  string
	IIF    string
	OIFs   []string
}

// Key returns the Rule Store's identity key for r.
func (r Rule) Key() Key {
	return Key{Source: r.Source, Group: r.Group}
}

// Key is the (source, group) identity of a Rule.
type Key struct {
	Source string
	Group  string
}

// Store holds the declarative rule set. It is not safe for concurrent use;
// the Transactional Controller is its only caller.
type Store struct {
	byKey map[Key]Rule
	order []Key
}

// New returns an empty Store.
func New() *Store {
	return &Store{byKey: make(map[Key]Rule)}
}

// Insert adds rule, failing with mfcerr.ErrDuplicateRule if its key already
// exists.
func (s *Store) Insert(rule Rule) error {
	key := rule.Key()
	if _, exists := s.byKey[key]; exists {
		return mfcerr.Wrap(mfcerr.KindValidation, "rule already exists", mfcerr.ErrDuplicateRule)
	}
	s.byKey[key] = rule
	s.order = append(s.order, key)
	return nil
}

// Remove deletes and returns the rule keyed by (source, group), failing
// with mfcerr.ErrNotFound if no such rule exists.
func (s *Store) Remove(source, group string) (Rule, error) {
	key := Key{Source: source, Group: group}
	rule, ok := s.byKey[key]
	if !ok {
		return Rule{}, mfcerr.Wrap(mfcerr.KindValidation, "rule not found", mfcerr.ErrNotFound)
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return rule, nil
}

// Get returns the rule keyed by (source, group), if present.
func (s *Store) Get(source, group string) (Rule, bool) {
	rule, ok := s.byKey[Key{Source: source, Group: group}]
	return rule, ok
}

// List returns every rule in insertion order.
func (s *Store) List() []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// Len returns the number of rules currently stored.
func (s *Store) Len() int {
	return len(s.byKey)
}
