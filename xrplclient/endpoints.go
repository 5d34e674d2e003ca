package xrplclient

import (
	"regexp"
	"strings"
)

var wsSchemeRE = regexp.MustCompile(`^wss?://`)

// endpointSet is an ordered, deduplicated sequence of candidate endpoints
// with a cursor that always indexes a valid entry. It is only mutated from
// the client's loop goroutine.
type endpointSet struct {
	list   []string
	cursor int
}

// newEndpointSet normalises raw (trim, filter by scheme, dedupe in order of
// first appearance). An empty result is a ConfigError.
func newEndpointSet(raw []string) (*endpointSet, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !wsSchemeRE.MatchString(e) {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, newClientError(KindConfigError, ErrNoEndpoints)
	}
	return &endpointSet{list: out}, nil
}

func (s *endpointSet) len() int { return len(s.list) }

func (s *endpointSet) current() string { return s.list[s.cursor] }

// advance moves the cursor to the next endpoint, wrapping to the start.
// It reports whether the advance wrapped (used to emit the "round" event).
func (s *endpointSet) advance() (wrapped bool) {
	s.cursor++
	if s.cursor >= len(s.list) {
		s.cursor = 0
		return true
	}
	return false
}
