// Package throttler decides which incoming crash reports to accept.
//
// The throttler evaluates an ordered rule set against the crash report
// annotations. Rules are pure data (see Rule and the Condition variants)
// so rule sets can be inspected, logged, and ported. Evaluation returns
// one of ACCEPT, DEFER, REJECT, or FAKEACCEPT together with the name of
// the matching rule and the sampling percentage.
package throttler

import (
	"math/rand/v2"
)

// Result is the terminal decision of the rule engine.
type Result int

// Throttle results. The integer values are encoded into crash ids, so
// they are wire contract, not implementation detail.
const (
	// Accept means save and process the crash report.
	Accept Result = 0
	// Defer means save but do not process.
	Defer Result = 1
	// Reject means throw the crash report away.
	Reject Result = 2
	// FakeAccept means return a crash id as if accepted, but throw the
	// report away. Use caution.
	FakeAccept Result = 3
	// Continue means keep evaluating subsequent rules.
	Continue Result = 4
)

// resultText maps results to their log/metric text.
var resultText = map[Result]string{
	Accept:     "ACCEPT",
	Defer:      "DEFER",
	Reject:     "REJECT",
	FakeAccept: "FAKEACCEPT",
	Continue:   "CONTINUE",
}

// String returns the textual form of the result.
func (r Result) String() string {
	if s, ok := resultText[r]; ok {
		return s
	}
	return "UNKNOWN"
}

// NoMatchRule is the rule name reported when no rule produced a
// terminal result.
const NoMatchRule = "NO_MATCH"

// Throttler evaluates an ordered rule set against crash annotations.
// Immutable after construction; safe for concurrent use.
type Throttler struct {
	rules    []Rule
	products []string
	random   func() float64
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithRandom replaces the random source. The function must return
// values uniformly distributed in [0, 1). Used by tests to make
// sampled rules deterministic.
func WithRandom(fn func() float64) Option {
	return func(t *Throttler) {
		t.random = fn
	}
}

// New creates a Throttler with the given rule set and product
// allow-list. An empty product list accepts all products.
func New(rules []Rule, products []string, opts ...Option) *Throttler {
	t := &Throttler{
		rules:    rules,
		products: products,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Products returns the configured product allow-list.
// Empty means all products are supported.
func (t *Throttler) Products() []string {
	return t.products
}

// Throttle evaluates the rule set in order against the annotations.
//
// Rules are visited top to bottom. The first rule whose condition holds
// and whose outcome resolves to something other than Continue decides
// the report. If no rule decides, the result is (Reject, NO_MATCH, 0).
func (t *Throttler) Throttle(annotations map[string]string) (Result, string, int) {
	for i := range t.rules {
		rule := &t.rules[i]
		if !rule.match(t, annotations) {
			continue
		}

		if !rule.Outcome.sampled {
			return rule.Outcome.terminal, rule.Name, 100
		}

		picked := rule.Outcome.gt
		if t.random()*100.0 <= float64(rule.Outcome.percent) {
			picked = rule.Outcome.le
		}
		if picked == Continue {
			continue
		}
		return picked, rule.Name, rule.Outcome.percent
	}

	return Reject, NoMatchRule, 0
}
