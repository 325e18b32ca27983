package tts

import (
	"regexp"
	"strings"
)

const DefaultChunkChars = 250

var (
	reBullet    = regexp.MustCompile(`(?m)^\x{2022}\s*`)
	reDash      = regexp.MustCompile(`(?m)^-\s*`)
	reNumbered  = regexp.MustCompile(`(?m)^\d+\.\s*`)
	reHeading   = regexp.MustCompile(`#+\s`)
	reLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reUnspoken  = regexp.MustCompile(`(?i)\b(bullet point|asterisk|star)\b`)
	reSpace     = regexp.MustCompile(`\s+`)
	reSentences = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// CleanForSpeech strips markdown and formatting that a voice should not read.
func CleanForSpeech(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ReplaceAll(text, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = reBullet.ReplaceAllString(s, "")
	s = reDash.ReplaceAllString(s, "")
	s = reNumbered.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reUnspoken.ReplaceAllString(s, "")
	s = reSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SplitSentences groups sentences into chunks of at most maxChars characters.
// A single sentence longer than maxChars is cut at word boundaries.
func SplitSentences(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	var sentences []string
	last := 0
	for _, loc := range reSentences.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var chunks []string
	cur := ""
	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > maxChars {
			flush()
			chunks = append(chunks, splitWords(s, maxChars)...)
			continue
		}
		if cur != "" && len(cur)+1+len(s) > maxChars {
			flush()
		}
		if cur == "" {
			cur = s
		} else {
			cur += " " + s
		}
	}
	flush()
	return chunks
}

func splitWords(s string, maxChars int) []string {
	var out []string
	cur := ""
	for _, w := range strings.Fields(s) {
		for len(w) > maxChars {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			out = append(out, w[:maxChars])
			w = w[maxChars:]
		}
		if cur != "" && len(cur)+1+len(w) > maxChars {
			out = append(out, cur)
			cur = ""
		}
		if cur == "" {
			cur = w
		} else {
			cur += " " + w
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
