// Package synth turns a resolved query plus conversation context into the
// final structured response: ranked song candidates, an optional prose
// answer, and an optional clarifying question.
package synth

import (
	"errors"
	"sort"
	"strings"
)

// Response kinds. Search returns candidates, answer returns prose, both
// returns both.
const (
	ResponseSearch = "search"
	ResponseAnswer = "answer"
	ResponseBoth   = "both"
)

// ErrParse marks a model reply that could not be decoded into a result.
// There is no further fallback once the answer step fails, so callers surface
// it instead of degrading.
var ErrParse = errors.New("synthesis response is not valid JSON")

// Candidate is one ranked song suggestion.
type Candidate struct {
	Title        string   `json:"title"`
	Artist       string   `json:"artist"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason,omitempty"`
	Background   string   `json:"background,omitempty"`
	LyricSnippet string   `json:"lyric_snippet,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// Key is the identity used for deduplication.
func (c Candidate) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Title)) + "|" + strings.ToLower(strings.TrimSpace(c.Artist))
}

// Answer is the prose part of a response.
type Answer struct {
	Text         string   `json:"text"`
	Sources      []string `json:"sources,omitempty"`
	RelatedSongs []string `json:"related_songs,omitempty"`
}

// Result is the synthesized outcome for one request.
type Result struct {
	ResponseType      string
	Candidates        []Candidate
	Answer            *Answer
	FollowUpQuestion  string
	OverallConfidence float64
}

// NoMatch reports a well-formed empty outcome: nothing found, but nothing
// broken either.
func (r Result) NoMatch() bool {
	return len(r.Candidates) == 0 && r.Answer == nil
}

const maxCandidates = 5

// DedupeCandidates collapses duplicate (title, artist) pairs keeping the
// highest confidence, sorts descending, and keeps the top entries. Running it
// on already-clean input returns the same list.
func DedupeCandidates(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := make(map[string]Candidate, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := c.Key()
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.Confidence > prev.Confidence {
			best[key] = c
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}
