package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/llm"
)

// meaningMarkers flag a query asking what a song is about rather than which
// song it is.
var meaningMarkers = []string{
	"meaning", "what does", "what do the lyrics", "what is the song about",
	"what's the song about", "song about", "interpret", "interpretation",
	"story behind",
}

func isMeaningQuery(queryText string) bool {
	lower := strings.ToLower(queryText)
	for _, marker := range meaningMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// enrichMeaning augments a meaning-query answer with a lyrics-grounded
// summary, translated to English when the lyrics are not. Every failure here
// is absorbed: the base result already stands on its own.
func (s *Synthesizer) enrichMeaning(ctx context.Context, queryText string, result *Result) {
	if !isMeaningQuery(queryText) || len(result.Candidates) == 0 {
		return
	}
	if s.lyrics == nil || !s.lyrics.Configured() {
		return
	}

	top := result.Candidates[0]
	found, err := s.lyrics.Lookup(ctx, top.Title, top.Artist)
	if err != nil {
		s.logger.Warn("lyrics lookup failed", "title", top.Title, "artist", top.Artist, "error", err)
		return
	}
	if found.Text == "" {
		return
	}

	lang := detectLanguage(found.Text)
	if lang == "" {
		lang = s.detectLanguageWithModel(ctx, found.Text)
	}

	summary, err := s.summarizeLyrics(ctx, top.Title, top.Artist, found.Text)
	if err != nil {
		s.logger.Warn("lyrics summary failed", "title", top.Title, "error", err)
		return
	}

	var parts []string
	parts = append(parts, summary)
	if lang != "" && lang != "english" {
		translated, err := s.translateToEnglish(ctx, summary)
		if err != nil {
			s.logger.Warn("summary translation failed", "language", lang, "error", err)
		} else if translated != "" {
			parts = append(parts, "In English: "+translated)
		}
	}

	if result.Answer == nil {
		result.Answer = &Answer{}
	}
	if result.Answer.Text != "" {
		result.Answer.Text += "\n\n"
	}
	result.Answer.Text += strings.Join(parts, "\n\n")
	if found.SourceURL != "" {
		result.Answer.Sources = appendUnique(result.Answer.Sources, found.SourceURL)
	}
	if result.ResponseType == ResponseSearch {
		result.ResponseType = ResponseBoth
	}
}

func (s *Synthesizer) detectLanguageWithModel(ctx context.Context, lyricsText string) string {
	prompt := fmt.Sprintf("Reply with only the lowercase English name of the language these lyrics are written in:\n\n%s", truncate(lyricsText, 600))
	raw, err := breaker.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, "", []llm.Message{llm.TextMessage("user", prompt)}, 16)
	})
	if err != nil {
		s.logger.Warn("language detection failed", "error", err)
		return ""
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func (s *Synthesizer) summarizeLyrics(ctx context.Context, title, artist, lyricsText string) (string, error) {
	prompt := fmt.Sprintf("Summarize what the song %q by %s is about in two or three sentences, based on these lyrics:\n\n%s",
		title, artist, truncate(lyricsText, 4000))
	return breaker.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, "", []llm.Message{llm.TextMessage("user", prompt)}, 512)
	})
}

func (s *Synthesizer) translateToEnglish(ctx context.Context, text string) (string, error) {
	prompt := "Translate to English, replying with only the translation:\n\n" + text
	return breaker.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, "", []llm.Message{llm.TextMessage("user", prompt)}, 512)
	})
}

// stopwords that separate the common lyric languages. Shared words ("la",
// "de") appear under every language they belong to, so only distinctive
// counts can win.
var languageStopwords = []struct {
	name  string
	words []string
}{
	{"english", []string{"the", "and", "you", "your", "with", "this", "was", "never", "don't"}},
	{"spanish", []string{"que", "los", "las", "una", "por", "para", "pero", "corazón", "cuando"}},
	{"french", []string{"les", "des", "est", "dans", "pour", "pas", "mais", "avec", "c'est"}},
	{"german", []string{"und", "ich", "nicht", "das", "ein", "ist", "dich", "wir", "wenn"}},
	{"portuguese", []string{"que", "não", "você", "uma", "por", "para", "mas", "coração", "quando"}},
	{"italian", []string{"che", "non", "una", "per", "sono", "con", "come", "cuore", "quando"}},
}

// detectLanguage guesses from stopword frequency. Returns "" when no
// language is a clear winner; callers then fall back to the model.
func detectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[strings.Trim(w, ".,!?;:()\"'")] = true
	}

	best, bestCount, runnerUp := "", 0, 0
	for _, lang := range languageStopwords {
		count := 0
		for _, w := range lang.words {
			if present[w] {
				count++
			}
		}
		if count > bestCount {
			best, runnerUp, bestCount = lang.name, bestCount, count
		} else if count > runnerUp {
			runnerUp = count
		}
	}

	if bestCount >= 3 && bestCount > runnerUp {
		return best
	}
	return ""
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
