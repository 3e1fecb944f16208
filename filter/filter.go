// Package filter implements the platform-wide delivery rule engine. Rules
// are named predicate/action pairs held in registration order; every rule
// whose predicate matches applies its action, and later actions override
// earlier ones. The engine produces an Outcome, not a mutated message.
package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/pkg/metrics"
)

// Predicate decides whether a rule applies to a message.
type Predicate func(*mail.Message) bool

// Action writes the rule's effect into an outcome.
type Action func(*Outcome)

// Outcome is the accumulated effect of rule evaluation. Unset options leave
// the message's own tier and the default folder in force.
type Outcome struct {
	Tier    fn.Option[mail.Tier]
	Folder  fn.Option[string]
	Discard bool
}

// Merge overlays other onto o: set fields in other win, discard is sticky.
func (o *Outcome) Merge(other Outcome) {
	if other.Tier.IsSome() {
		o.Tier = other.Tier
	}
	if other.Folder.IsSome() {
		o.Folder = other.Folder
	}
	if other.Discard {
		o.Discard = true
	}
}

// SetTier returns an action that overrides the delivery tier.
func SetTier(tier mail.Tier) Action {
	return func(o *Outcome) {
		o.Tier = fn.Some(tier)
	}
}

// RedirectTo returns an action that overrides the target folder.
func RedirectTo(folderPath string) Action {
	return func(o *Outcome) {
		o.Folder = fn.Some(folderPath)
	}
}

// FieldContains returns a predicate matching messages whose named field
// contains substring, case-insensitively. Valid fields: from, to, subject,
// body.
func FieldContains(field, substring string) (Predicate, error) {
	accessor, err := fieldAccessor(field)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substring)
	return func(msg *mail.Message) bool {
		return strings.Contains(strings.ToLower(accessor(msg)), needle)
	}, nil
}

func fieldAccessor(field string) (func(*mail.Message) string, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "from":
		return func(m *mail.Message) string { return m.From }, nil
	case "to":
		return func(m *mail.Message) string { return m.To }, nil
	case "subject":
		return func(m *mail.Message) string { return m.Subject }, nil
	case "body":
		return func(m *mail.Message) string { return m.Body }, nil
	default:
		return nil, fmt.Errorf("unknown filter field %q (valid: from, to, subject, body)", field)
	}
}

// Rule is one named predicate/action pair.
type Rule struct {
	Name    string
	Match   Predicate
	Apply   Action
	Summary string
}

// NewRule builds a contains-rule from plain declaration values, the form
// filters take in the config file and the admin API. action is "set_tier"
// (tier names the target tier) or "redirect" (folder names the target
// folder path).
func NewRule(name, field, contains, action, tier, folder string) (Rule, error) {
	if strings.TrimSpace(name) == "" {
		return Rule{}, fmt.Errorf("filter name cannot be empty")
	}

	match, err := FieldContains(field, contains)
	if err != nil {
		return Rule{}, fmt.Errorf("filter %q: %w", name, err)
	}

	var apply Action
	var effect string
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "set_tier":
		parsed := mail.ParseTier(tier)
		apply = SetTier(parsed)
		effect = "tier " + parsed.String()
	case "redirect":
		if strings.TrimSpace(folder) == "" {
			return Rule{}, fmt.Errorf("filter %q: redirect requires a folder", name)
		}
		apply = RedirectTo(folder)
		effect = "folder " + folder
	default:
		return Rule{}, fmt.Errorf("filter %q: unknown action %q (valid: set_tier, redirect)", name, action)
	}

	return Rule{
		Name:    name,
		Match:   match,
		Apply:   apply,
		Summary: fmt.Sprintf("%s contains %q -> %s", strings.ToLower(field), contains, effect),
	}, nil
}

// RuleInfo is the listing view of a registered rule, in evaluation order.
type RuleInfo struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Engine evaluates rules in registration order.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
	names map[string]struct{}
}

// NewEngine returns an engine with no rules.
func NewEngine() *Engine {
	return &Engine{names: make(map[string]struct{})}
}

// Register appends a rule. Rule names are unique across the engine;
// a duplicate returns ErrFilterExists.
func (e *Engine) Register(rule Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("filter name cannot be empty")
	}
	if rule.Match == nil || rule.Apply == nil {
		return fmt.Errorf("filter %q: predicate and action are required", rule.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.names[rule.Name]; ok {
		return fmt.Errorf("%w: %q", consts.ErrFilterExists, rule.Name)
	}
	e.names[rule.Name] = struct{}{}
	e.rules = append(e.rules, rule)
	return nil
}

// Evaluate runs every rule against the message in registration order. All
// matching rules apply; later actions overwrite earlier ones.
func (e *Engine) Evaluate(msg *mail.Message) Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var outcome Outcome
	for _, rule := range e.rules {
		if rule.Match(msg) {
			rule.Apply(&outcome)
			metrics.FilterMatches.WithLabelValues(rule.Name).Inc()
		}
	}
	return outcome
}

// Rules returns the registered rules in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]RuleInfo, len(e.rules))
	for i, rule := range e.rules {
		infos[i] = RuleInfo{Name: rule.Name, Summary: rule.Summary}
	}
	return infos
}

// Len returns the number of registered rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}
