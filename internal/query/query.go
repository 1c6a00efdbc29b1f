// Package query turns a finished transcript into at most one command.
//
// A transcript is normalised with [Tokenize]. A [Chain] then offers the
// tokens to each [Matcher] in priority order; the first matcher whose
// predicate accepts them performs its side effect, usually enqueueing a
// spoken response for the tts actor, and no later matcher is consulted.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/MrWong99/kupo/internal/actor"
)

// DefaultTarget is the actor that receives responses when none is configured.
const DefaultTarget = "tts"

// ErrEmptyPhrase is returned when a matcher is built from a phrase with no
// tokens. An empty phrase would match every transcript.
var ErrEmptyPhrase = errors.New("query: empty phrase")

// Tokenize splits s on whitespace, strips ASCII punctuation from each token,
// lower-cases it, and drops tokens that end up empty.
func Tokenize(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.ToLower(strings.Map(func(r rune) rune {
			if r <= unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
				return -1
			}
			return r
		}, f))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Predicate decides whether a token sequence addresses a command.
type Predicate interface {
	Match(tokens []string) bool
}

// Matcher is a predicate with a side effect run on match.
type Matcher interface {
	Predicate

	// Name identifies the matcher in logs and metrics.
	Name() string

	// OnMatch performs the matcher's side effect through out.
	OnMatch(ctx context.Context, out actor.Manager) error
}

// SubsequenceMatcher matches when Target occurs as a contiguous run anywhere
// in the tokens.
type SubsequenceMatcher struct {
	Target []string
}

// NewSubsequence tokenizes phrase into a [SubsequenceMatcher].
func NewSubsequence(phrase string) (SubsequenceMatcher, error) {
	target := Tokenize(phrase)
	if len(target) == 0 {
		return SubsequenceMatcher{}, fmt.Errorf("%w: %q", ErrEmptyPhrase, phrase)
	}
	return SubsequenceMatcher{Target: target}, nil
}

// Match implements [Predicate].
func (m SubsequenceMatcher) Match(tokens []string) bool {
	return findRun(tokens, m.Target, func(ti, wi int) bool { return tokens[ti] == m.Target[wi] })
}

// findRun reports whether target appears contiguously in tokens, comparing
// positions with eq.
func findRun(tokens, target []string, eq func(tokenIdx, targetIdx int) bool) bool {
	if len(target) == 0 {
		return false
	}
outer:
	for start := 0; start+len(target) <= len(tokens); start++ {
		for i := range target {
			if !eq(start+i, i) {
				continue outer
			}
		}
		return true
	}
	return false
}

// ResponseMatcher sends a fixed Response to Target when its predicate
// matches.
type ResponseMatcher struct {
	Predicate

	// Label names the command in logs. Defaults to the response text.
	Label string

	// Target is the receiving actor. Empty means [DefaultTarget].
	Target string

	// Response is the payload sent on match.
	Response string
}

// NewResponse builds a [ResponseMatcher] for phrase backed by a
// [SubsequenceMatcher].
func NewResponse(phrase, response string) (*ResponseMatcher, error) {
	p, err := NewSubsequence(phrase)
	if err != nil {
		return nil, err
	}
	return &ResponseMatcher{Predicate: p, Label: strings.Join(p.Target, " "), Response: response}, nil
}

// Name implements [Matcher].
func (m *ResponseMatcher) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Response
}

// OnMatch implements [Matcher].
func (m *ResponseMatcher) OnMatch(_ context.Context, out actor.Manager) error {
	target := m.Target
	if target == "" {
		target = DefaultTarget
	}
	if out == nil {
		return fmt.Errorf("query: %s: %w", m.Name(), actor.ErrNoManager)
	}
	if err := out.Send(target, m.Response); err != nil {
		return fmt.Errorf("query: %s: %w", m.Name(), err)
	}
	return nil
}

// Chain tries matchers in order.
type Chain []Matcher

// Dispatch runs the first matcher that accepts tokens and returns it, or nil
// when none matched.
func (c Chain) Dispatch(ctx context.Context, tokens []string, out actor.Manager) (Matcher, error) {
	for _, m := range c {
		if !m.Match(tokens) {
			continue
		}
		return m, m.OnMatch(ctx, out)
	}
	return nil, nil
}

// DefaultCommands are the built-in commands used when none are configured.
func DefaultCommands() Chain {
	a, _ := NewResponse("this is a test", "hear you loud and clear")
	b, _ := NewResponse("guess what", "chicken butt")
	return Chain{a, b}
}
