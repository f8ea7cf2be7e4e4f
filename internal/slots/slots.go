// Package slots rebuilds the cumulative profile of a music query from the
// conversation history. The profile is never persisted: it is recomputed from
// turn history on every request, so it self-heals from partial writes.
package slots

import (
	"fmt"
	"sort"
	"strings"
)

// Slots is the cumulative slot-filled profile of the query, plus the
// negative context: candidates the user already rejected and follow-up
// questions already asked.
type Slots struct {
	Genre            string
	Era              string
	Tempo            string
	Mood             string
	ArtistName       string
	ArtistGender     string
	ArtistType       string
	LyricFragment    string
	ListeningContext string
	Instruments      []string

	// Rejected holds lowercased "title|artist" keys of low-confidence
	// candidates already shown to the user.
	Rejected map[string]bool
	// AskedQuestions holds follow-up question texts already posed.
	AskedQuestions []string
}

// RejectedKey builds the identity key used for the rejection set.
func RejectedKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(artist))
}

// IsRejected reports whether a (title, artist) pair was already turned down.
func (s Slots) IsRejected(title, artist string) bool {
	return s.Rejected[RejectedKey(title, artist)]
}

// Known returns the filled slots as ordered label/value pairs for prompt
// rendering.
func (s Slots) Known() []string {
	var known []string
	add := func(label, value string) {
		if value != "" {
			known = append(known, fmt.Sprintf("%s: %s", label, value))
		}
	}
	add("lyric fragment", s.LyricFragment)
	add("genre", s.Genre)
	add("era", s.Era)
	add("tempo", s.Tempo)
	add("mood", s.Mood)
	add("artist name", s.ArtistName)
	add("artist gender", s.ArtistGender)
	add("artist type", s.ArtistType)
	add("listening context", s.ListeningContext)
	if len(s.Instruments) > 0 {
		add("instruments", strings.Join(s.Instruments, ", "))
	}
	return known
}

// Summary renders the known slots as one prompt-ready block, empty string when
// nothing is known.
func (s Slots) Summary() string {
	known := s.Known()
	if len(known) == 0 {
		return ""
	}
	return strings.Join(known, "\n")
}

// RejectedList renders the rejection set sorted for deterministic prompts.
func (s Slots) RejectedList() []string {
	if len(s.Rejected) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Rejected))
	for key := range s.Rejected {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// NextQuestionTarget ranks the missing slots by informativeness and returns
// the one the next clarifying question should pursue. A lyric fragment
// narrows a search harder than any other slot; instruments barely narrow it
// at all.
func (s Slots) NextQuestionTarget() string {
	switch {
	case s.LyricFragment == "":
		return "lyric fragment"
	case s.Genre == "":
		return "genre"
	case s.Era == "":
		return "era"
	case s.Tempo == "" && s.Mood == "":
		return "tempo or mood"
	case s.ArtistName == "" && s.ArtistGender == "" && s.ArtistType == "":
		return "artist hints"
	case len(s.Instruments) == 0:
		return "instruments"
	default:
		return ""
	}
}
