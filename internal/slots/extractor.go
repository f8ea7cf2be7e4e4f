package slots

import (
	"regexp"
	"strings"

	"github.com/earworm-app/resolver/internal/store"
)

// rejectedThreshold marks a shown candidate as implicitly rejected: the
// conversation continued past it, so a low-confidence suggestion did not
// resolve the query.
const defaultRejectedThreshold = 0.6

// Extract walks the turn history chronologically and rebuilds the slot
// profile. Each user turn that directly follows an assistant follow-up is
// treated as the answer to that question and run through the matcher battery.
// Extraction never fails: text that matches nothing simply leaves slots unset.
func Extract(turns []store.Turn) Slots {
	return ExtractWithThreshold(turns, defaultRejectedThreshold)
}

// ExtractWithThreshold is Extract with a configurable rejection cutoff.
func ExtractWithThreshold(turns []store.Turn, rejectedThreshold float64) Slots {
	s := Slots{Rejected: make(map[string]bool)}

	prevWasFollowUp := false
	for _, t := range turns {
		switch {
		case t.Role == store.RoleAssistant && t.Kind == store.KindFollowUp:
			if q := strings.TrimSpace(t.Text); q != "" {
				s.AskedQuestions = append(s.AskedQuestions, q)
			}
			prevWasFollowUp = true
			continue

		case t.Role == store.RoleAssistant && t.Kind == store.KindCandidate:
			c := t.Candidate()
			if c.Title != "" && c.Confidence < rejectedThreshold {
				s.Rejected[RejectedKey(c.Title, c.Artist)] = true
			}

		case t.Role == store.RoleUser && prevWasFollowUp:
			applyMatchers(&s, t.Text)
		}
		prevWasFollowUp = false
	}

	return s
}

// applyMatchers runs the fixed battery against one answer. Later answers
// overwrite earlier ones for the same slot; within one answer the matchers
// are independent, so order does not matter.
func applyMatchers(s *Slots, text string) {
	lower := strings.ToLower(text)

	if v := matchLexicon(lower, genreLexicon); v != "" {
		s.Genre = v
	}
	if v := matchEra(lower); v != "" {
		s.Era = v
	}
	if v := matchKeywords(lower, tempoKeywords); v != "" {
		s.Tempo = v
	}
	if v := matchKeywords(lower, moodKeywords); v != "" {
		s.Mood = v
	}
	if v := matchArtistName(text); v != "" {
		s.ArtistName = v
	}
	if v := matchKeywords(lower, artistGenderKeywords); v != "" {
		s.ArtistGender = v
	}
	if v := matchKeywords(lower, artistTypeKeywords); v != "" {
		s.ArtistType = v
	}
	if v := matchLyricFragment(text); v != "" {
		s.LyricFragment = v
	}
	if found := matchAll(lower, instrumentLexicon); len(found) > 0 {
		s.Instruments = found
	}
	if v := matchKeywords(lower, contextKeywords); v != "" {
		s.ListeningContext = v
	}
}

// --- matcher battery ---

// Compound genres precede their substrings (k-pop before pop) so the first
// whole-word hit is the most specific one.
var genreLexicon = []string{
	"hip hop", "hip-hop", "k-pop", "kpop", "reggaeton", "r&b", "rnb",
	"rock", "pop", "jazz", "blues", "country", "folk", "metal", "punk",
	"reggae", "soul", "funk", "disco", "electronic", "edm", "house",
	"techno", "classical", "opera", "gospel", "latin", "indie", "rap",
	"ska", "salsa", "afrobeat", "grunge", "ambient", "lo-fi", "lofi",
}

var instrumentLexicon = []string{
	"guitar", "piano", "violin", "drums", "bass", "saxophone", "sax",
	"trumpet", "flute", "cello", "synth", "synthesizer", "organ", "banjo",
	"harmonica", "ukulele", "accordion", "harp", "keyboard", "strings",
	"whistle", "whistling",
}

var tempoKeywords = map[string][]string{
	"fast":     {"fast", "quick", "upbeat", "uptempo", "energetic", "driving"},
	"slow":     {"slow", "ballad", "downtempo", "mellow", "laid back", "laid-back"},
	"moderate": {"mid tempo", "mid-tempo", "medium tempo", "moderate"},
}

var moodKeywords = map[string][]string{
	"happy":     {"happy", "cheerful", "joyful", "feel good", "feel-good", "fun"},
	"sad":       {"sad", "melancholy", "melancholic", "heartbreak", "crying", "depressing"},
	"romantic":  {"romantic", "love song", "sensual"},
	"angry":     {"angry", "aggressive", "rage"},
	"chill":     {"chill", "relaxing", "calm", "soothing", "peaceful"},
	"nostalgic": {"nostalgic", "nostalgia", "reminds me of"},
	"dark":      {"dark", "moody", "haunting", "eerie"},
}

var artistGenderKeywords = map[string][]string{
	"female": {"female singer", "female voice", "female vocalist", "woman singing", "woman's voice", "girl singing", "she sings", "she was singing"},
	"male":   {"male singer", "male voice", "male vocalist", "man singing", "man's voice", "guy singing", "he sings", "he was singing"},
}

var artistTypeKeywords = map[string][]string{
	"band":  {"a band", "the band", "group of", "boy band", "girl group", "rock band"},
	"solo":  {"solo artist", "solo singer", "a singer", "one singer", "singer-songwriter"},
	"duo":   {"a duo", "two singers", "duet"},
	"choir": {"choir", "chorus of voices"},
	"dj":    {"a dj", "the dj", "producer"},
}

var contextKeywords = map[string][]string{
	"radio":   {"on the radio", "radio station"},
	"gym":     {"at the gym", "workout", "working out"},
	"driving": {"while driving", "in the car", "road trip"},
	"party":   {"at a party", "at the club", "clubbing", "dancing at"},
	"cafe":    {"in a cafe", "at a cafe", "coffee shop", "in a café", "at a café"},
	"store":   {"in a store", "at the mall", "supermarket", "grocery"},
	"movie":   {"in a movie", "from a film", "movie soundtrack", "in a show", "tv show", "in a series"},
	"ad":      {"in an ad", "in a commercial", "an advert"},
	"wedding": {"at a wedding"},
	"game":    {"in a game", "video game"},
}

// decade patterns: "90s", "1990s", "the nineties".
var (
	decadeDigits = regexp.MustCompile(`\b((?:19|20)?\d0)'?s\b`)
	decadeWords  = map[string]string{
		"fifties": "50s", "sixties": "60s", "seventies": "70s",
		"eighties": "80s", "nineties": "90s", "noughties": "2000s",
		"two thousands": "2000s", "twenty tens": "2010s",
	}
)

func matchEra(lower string) string {
	if m := decadeDigits.FindStringSubmatch(lower); m != nil {
		return m[1] + "s"
	}
	for word, era := range decadeWords {
		if strings.Contains(lower, word) {
			return era
		}
	}
	if strings.Contains(lower, "recent") || strings.Contains(lower, "new song") || strings.Contains(lower, "came out recently") {
		return "recent"
	}
	if strings.Contains(lower, "oldie") || strings.Contains(lower, "old song") || strings.Contains(lower, "classic song") {
		return "older"
	}
	return ""
}

// artist name: "by <Name>", "from <Name>", "sounds like <Name>".
var artistNamePattern = regexp.MustCompile(`(?i)\b(?:by|from|sounds like|sounded like|maybe)\s+([A-Z][\w.&'-]*(?:\s+[A-Z][\w.&'-]*){0,3})`)

func matchArtistName(text string) string {
	m := artistNamePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// lyric fragment: a quoted substring, or the tail of "goes like ...".
var (
	quotedPattern   = regexp.MustCompile(`["“”']([^"“”']{3,120})["“”']`)
	goesLikePattern = regexp.MustCompile(`(?i)\b(?:goes like|lyrics are|the words are|it goes|something like)\s+(.{3,120})`)
)

func matchLyricFragment(text string) string {
	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := goesLikePattern.FindStringSubmatch(text); m != nil {
		frag := strings.Trim(strings.TrimSpace(m[1]), ".!?")
		// "it goes" matches before "goes like" in "it goes like ...".
		frag = strings.TrimPrefix(frag, "like ")
		return frag
	}
	return ""
}

// matchLexicon returns the first lexicon entry found as a whole word.
func matchLexicon(lower string, lexicon []string) string {
	for _, entry := range lexicon {
		if containsWord(lower, entry) {
			return entry
		}
	}
	return ""
}

// matchAll returns every lexicon entry present, in lexicon order.
func matchAll(lower string, lexicon []string) []string {
	var found []string
	for _, entry := range lexicon {
		if containsWord(lower, entry) {
			found = append(found, entry)
		}
	}
	return found
}

// matchKeywords returns the label whose keyword set matches first; map
// iteration order is randomized, so candidates are collected and resolved by
// earliest match position to keep extraction deterministic.
func matchKeywords(lower string, sets map[string][]string) string {
	best := ""
	bestPos := len(lower) + 1
	for label, words := range sets {
		for _, w := range words {
			if pos := wordIndex(lower, w); pos >= 0 {
				if pos < bestPos || (pos == bestPos && label < best) {
					best = label
					bestPos = pos
				}
				break
			}
		}
	}
	return best
}

func containsWord(s, word string) bool {
	return wordIndex(s, word) >= 0
}

// wordIndex returns the position of the first whole-word occurrence, skipping
// embedded hits like "fast" inside "breakfast".
func wordIndex(s, word string) int {
	pos := 0
	for {
		idx := strings.Index(s[pos:], word)
		if idx < 0 {
			return -1
		}
		idx += pos
		if wordBoundary(s, word, idx) {
			return idx
		}
		pos = idx + 1
	}
}

func wordBoundary(s, word string, pos int) bool {
	before := pos == 0 || !isWordChar(s[pos-1])
	end := pos + len(word)
	after := end >= len(s) || !isWordChar(s[end])
	return before && after
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
