package textfit

import "unicode"

// span marks one word as a half-open byte range [start, end) of the source.
type span struct {
	start int
	end   int
}

// wordSpans returns every maximal run of non-whitespace runes in text, in order.
func wordSpans(text string) []span {
	var spans []span
	inWord := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				spans = append(spans, span{start: start, end: i})
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// prefix returns text up to and including the k-th word. Separators between
// the kept words, newlines included, are left untouched.
func prefix(text string, spans []span, k int) string {
	if k <= 0 || len(spans) == 0 {
		return ""
	}
	if k > len(spans) {
		k = len(spans)
	}
	return text[:spans[k-1].end]
}

// CountWords counts whitespace-delimited words. Runs of whitespace, including
// newlines, count as a single separator.
func CountWords(text string) int {
	return len(wordSpans(text))
}

// CapWords returns the longest whole-word prefix of text holding at most max
// words. Text already within the cap is returned unchanged.
func CapWords(text string, max int) string {
	if max <= 0 {
		return ""
	}
	spans := wordSpans(text)
	if len(spans) <= max {
		return text
	}
	return prefix(text, spans, max)
}
