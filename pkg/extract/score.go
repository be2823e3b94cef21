package extract

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Score weights. They sum to 100.
const (
	weightDiversity = 20.0
	weightWordLen   = 15.0
	weightValidity  = 20.0
	weightStructure = 8.0
	weightSentences = 12.0
	weightLines     = 15.0
	weightLength    = 10.0
)

const (
	minScoredRunes    = 10
	fullLengthRunes   = 1000
	idealWordLen      = 5.5
	idealLineLen      = 50.0
	wordCoverageFloor = 0.6
	garbageSlope      = 5.0
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?؟]+`)
	cidGlyph      = regexp.MustCompile(`\(cid:\d+\)`)
)

// Score estimates extraction fidelity of text on a 0 to 100 scale.
//
// Components: character diversity, average word length, share of plausible
// words (scaled down when letters cover little of the text), table markers,
// sentence lengths, line lengths and overall length. The sum is multiplied by
// a garbage penalty that reaches zero once a fifth of the runes are control
// characters, replacement runes, private-use glyphs or unmapped (cid:N) codes.
func Score(text string) float64 {
	clean := strings.TrimSpace(text)
	total := utf8.RuneCountInString(clean)
	if total < minScoredRunes {
		return 0
	}

	score := 0.0

	unique := make(map[rune]struct{})
	for _, r := range strings.ToLower(clean) {
		unique[r] = struct{}{}
	}
	score += math.Min(float64(len(unique))/50, 1) * weightDiversity

	words := strings.FieldsFunc(clean, func(r rune) bool { return !isWordRune(r) })
	if len(words) > 0 {
		letters, valid := 0, 0
		for _, w := range words {
			n := utf8.RuneCountInString(w)
			letters += n
			if n >= 2 && n <= 15 {
				valid++
			}
		}
		avg := float64(letters) / float64(len(words))
		score += math.Max(1-math.Abs(avg-idealWordLen)/10, 0) * weightWordLen

		nonSpace := total - countSpace(clean)
		coverage := 1.0
		if nonSpace > 0 {
			coverage = math.Min(float64(letters)/float64(nonSpace)/wordCoverageFloor, 1)
		}
		score += float64(valid) / float64(len(words)) * coverage * weightValidity
	}

	if strings.ContainsAny(clean, "|\t") {
		score += weightStructure
	}

	sentences := sentenceSplit.Split(clean, -1)
	if len(sentences) > 0 {
		reasonable := 0
		for _, s := range sentences {
			n := utf8.RuneCountInString(strings.TrimSpace(s))
			if n >= 10 && n <= 200 {
				reasonable++
			}
		}
		score += float64(reasonable) / float64(len(sentences)) * weightSentences
	}

	lineCount, lineRunes := 0, 0
	for _, line := range strings.Split(clean, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineCount++
		lineRunes += utf8.RuneCountInString(line)
	}
	if lineCount > 0 {
		avg := float64(lineRunes) / float64(lineCount)
		score += math.Max(1-math.Abs(avg-idealLineLen)/100, 0) * weightLines
	}

	score += math.Min(float64(total)/fullLengthRunes, 1) * weightLength

	score *= 1 - math.Min(garbageRatio(clean, total)*garbageSlope, 1)

	return math.Max(0, math.Min(score, 100))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) && (unicode.Is(unicode.Latin, r) || unicode.Is(unicode.Arabic, r))
}

func countSpace(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// garbageRatio is the share of runes that indicate a broken text layer.
func garbageRatio(s string, total int) float64 {
	if total == 0 {
		return 0
	}

	garbage := 0
	for _, m := range cidGlyph.FindAllString(s, -1) {
		garbage += len(m)
	}
	s = cidGlyph.ReplaceAllString(s, "")

	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
		case r == utf8.RuneError, unicode.IsControl(r), unicode.Is(unicode.Co, r):
			garbage++
		}
	}
	return float64(garbage) / float64(total)
}
