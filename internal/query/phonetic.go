package query

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// PhoneticOption configures a [PhoneticMatcher].
type PhoneticOption func(*PhoneticMatcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for two tokens
// that share a Double Metaphone code. Default: 0.70.
func WithPhoneticThreshold(v float64) PhoneticOption {
	return func(m *PhoneticMatcher) { m.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for tokens with no
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(v float64) PhoneticOption {
	return func(m *PhoneticMatcher) { m.fuzzyThreshold = v }
}

// PhoneticMatcher is a [SubsequenceMatcher] that tolerates transcription
// errors: a token matches its target word when both are equal, when their
// Double Metaphone codes overlap and their Jaro-Winkler similarity reaches
// the phonetic threshold, or when the similarity alone reaches the fuzzy
// threshold.
//
// It is read-only after construction and safe for concurrent use.
type PhoneticMatcher struct {
	Target []string

	codes             []map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewPhonetic tokenizes phrase into a [PhoneticMatcher].
func NewPhonetic(phrase string, opts ...PhoneticOption) (*PhoneticMatcher, error) {
	target := Tokenize(phrase)
	if len(target) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPhrase, phrase)
	}
	m := &PhoneticMatcher{
		Target:            target,
		codes:             make([]map[string]struct{}, len(target)),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for i, w := range target {
		m.codes[i] = metaphoneCodes(w)
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Match implements [Predicate].
func (m *PhoneticMatcher) Match(tokens []string) bool {
	if len(tokens) < len(m.Target) {
		return false
	}
	// Cache per-token codes; a transcript is short.
	codes := make([]map[string]struct{}, len(tokens))
	return findRun(tokens, m.Target, func(ti, wi int) bool {
		got, want := tokens[ti], m.Target[wi]
		if got == want {
			return true
		}
		score := matchr.JaroWinkler(got, want, false)
		if score >= m.fuzzyThreshold {
			return true
		}
		if codes[ti] == nil {
			codes[ti] = metaphoneCodes(got)
		}
		return score >= m.phoneticThreshold && overlap(codes[ti], m.codes[wi])
	})
}

// String returns the target phrase.
func (m *PhoneticMatcher) String() string { return strings.Join(m.Target, " ") }

func metaphoneCodes(w string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(w)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
