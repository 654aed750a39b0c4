package throttler

import (
	"fmt"
	"regexp"
	"strings"
)

// ruleNameRe validates rule names; they feed log lines and metric tags.
var ruleNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// WholeCrash is the rule key meaning the condition sees the entire
// annotation map rather than a single value.
const WholeCrash = "*"

// Rule is a single throttling rule. Immutable after construction.
type Rule struct {
	// Name is the friendly name for the rule, used for logging and
	// metrics. Alphanumerics and underscores only.
	Name string
	// Key is the annotation key the condition looks at, or WholeCrash
	// to evaluate against the entire annotation map. A keyed rule whose
	// key is absent from the annotations is skipped.
	Key string
	// Condition decides whether this rule applies.
	Condition Condition
	// Outcome is the decision this rule produces when it applies.
	Outcome Outcome
}

// NewRule creates a Rule, validating the rule name.
func NewRule(name, key string, condition Condition, outcome Outcome) (Rule, error) {
	if !ruleNameRe.MatchString(name) {
		return Rule{}, fmt.Errorf("invalid rule name %q", name)
	}
	if condition == nil {
		return Rule{}, fmt.Errorf("rule %q has no condition", name)
	}
	return Rule{Name: name, Key: key, Condition: condition, Outcome: outcome}, nil
}

// mustRule builds the package rule tables; invalid names are programmer
// error.
func mustRule(name, key string, condition Condition, outcome Outcome) Rule {
	rule, err := NewRule(name, key, condition, outcome)
	if err != nil {
		panic(err)
	}
	return rule
}

// match applies the rule to the annotations.
func (r *Rule) match(t *Throttler, annotations map[string]string) bool {
	if r.Key == WholeCrash {
		return r.Condition.Match(t, "", annotations)
	}
	value, ok := annotations[r.Key]
	if !ok {
		return false
	}
	return r.Condition.Match(t, value, annotations)
}

// Outcome is what a matching rule produces: either a terminal result or
// a sampled (percent, LE, GT) pick.
type Outcome struct {
	terminal Result
	percent  int
	le, gt   Result
	sampled  bool
}

// Terminal returns an outcome that always produces the given result.
func Terminal(result Result) Outcome {
	return Outcome{terminal: result}
}

// Sampled returns an outcome that draws a random number in [0, 100) and
// produces le when the draw is at most percent, gt otherwise. Either
// side may be Continue to fall through to the next rule.
func Sampled(percent int, le, gt Result) Outcome {
	return Outcome{percent: percent, le: le, gt: gt, sampled: true}
}

// Condition is a predicate over a crash report. For keyed rules the
// value parameter carries the annotation value; for WholeCrash rules it
// is empty and the condition inspects the annotation map directly.
type Condition interface {
	Match(t *Throttler, value string, annotations map[string]string) bool
}

// Always matches every crash report.
type Always struct{}

// Match implements Condition.
func (Always) Match(*Throttler, string, map[string]string) bool { return true }

// Equals matches when the keyed annotation value equals Value.
type Equals struct {
	Value string
}

// Match implements Condition.
func (c Equals) Match(_ *Throttler, value string, _ map[string]string) bool {
	return value == c.Value
}

// StartsWith matches when the keyed annotation value has the prefix.
type StartsWith struct {
	Prefix string
}

// Match implements Condition.
func (c StartsWith) Match(_ *Throttler, value string, _ map[string]string) bool {
	return strings.HasPrefix(value, c.Prefix)
}

// OneOf matches when the keyed annotation value is one of Values.
type OneOf struct {
	Values []string
}

// Match implements Condition.
func (c OneOf) Match(_ *Throttler, value string, _ map[string]string) bool {
	for _, v := range c.Values {
		if value == v {
			return true
		}
	}
	return false
}

// KeyEquals matches when the named annotation exists and equals Value.
// Use with WholeCrash rules that look at several keys.
type KeyEquals struct {
	Key   string
	Value string
}

// Match implements Condition.
func (c KeyEquals) Match(_ *Throttler, _ string, annotations map[string]string) bool {
	return annotations[c.Key] == c.Value
}

// HasKey matches when the named annotation is present.
type HasKey struct {
	Key string
}

// Match implements Condition.
func (c HasKey) Match(_ *Throttler, _ string, annotations map[string]string) bool {
	_, ok := annotations[c.Key]
	return ok
}

// AllOf matches when every inner condition matches.
type AllOf struct {
	Conditions []Condition
}

// Match implements Condition.
func (c AllOf) Match(t *Throttler, value string, annotations map[string]string) bool {
	for _, inner := range c.Conditions {
		if !inner.Match(t, value, annotations) {
			return false
		}
	}
	return true
}

// Predicate wraps an arbitrary function for conditions too involved to
// express as data. The throttler is passed so predicates can consult
// the product allow-list.
type Predicate struct {
	Fn func(t *Throttler, annotations map[string]string) bool
}

// Match implements Condition.
func (c Predicate) Match(t *Throttler, _ string, annotations map[string]string) bool {
	return c.Fn(t, annotations)
}
