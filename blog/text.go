package blog

import (
	"math"
	"strings"
	"unicode"
)

const wordsPerMinute = 200

// Slugify lowercases title, drops punctuation and joins words with dashes
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			dash = true
		}
	}
	return b.String()
}

// ReadingMinutes estimates reading time at 200 words per minute, at least one
func ReadingMinutes(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

// Excerpt returns whole leading sentences of content fitting in maxLen
// characters, or a truncated first sentence when even that is too long.
func Excerpt(content string, maxLen int) string {
	text := strings.Join(strings.Fields(stripMarkdown(content)), " ")
	if len(text) <= maxLen {
		return text
	}

	var out strings.Builder
	for _, sentence := range splitSentences(text) {
		if out.Len()+len(sentence)+1 > maxLen {
			break
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(sentence)
	}
	if out.Len() > 0 {
		return out.String()
	}

	cut := strings.LastIndexByte(text[:maxLen], ' ')
	if cut <= 0 {
		cut = maxLen
	}
	return strings.TrimSpace(text[:cut]) + "..."
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// stripMarkdown removes heading markers and emphasis so excerpts read as prose
func stripMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(strings.TrimSpace(line), "#>-* ")
	}
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(strings.Join(lines, "\n"))
}
