package telegram

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxBodyLength is the platform cap on a text message body.
	MaxBodyLength = 4096
	// MaxCaptionLength is the platform cap on a media caption.
	MaxCaptionLength = 1024
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes the structural control characters of the platform's
// HTML parse mode. It must be applied to every user-provided fragment
// before it is embedded in a message body.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// FitsCaption reports whether text fits the single-caption budget.
func FitsCaption(text string) bool {
	return utf8.RuneCountInString(text) <= MaxCaptionLength
}

// SplitByLimit splits text into chunks of at most limit runes each,
// breaking at the last paragraph, line, or space boundary before the
// limit and never inside an HTML escape sequence. Chunks preserve the
// original text verbatim apart from the boundary whitespace they split on.
func SplitByLimit(text string, limit int) []string {
	if limit <= 0 || text == "" {
		return nil
	}
	var chunks []string
	rest := text
	for utf8.RuneCountInString(rest) > limit {
		cut := cutPoint(rest, limit)
		if cut <= 0 {
			break
		}
		chunks = append(chunks, strings.TrimRight(rest[:cut], " \n"))
		rest = strings.TrimLeft(rest[cut:], " \n")
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// TruncateCaption cuts text down to the caption budget at a safe boundary.
func TruncateCaption(text string) string {
	if FitsCaption(text) {
		return text
	}
	cut := cutPoint(text, MaxCaptionLength-1)
	if cut <= 0 {
		return ""
	}
	return strings.TrimRight(text[:cut], " \n") + "…"
}

// cutPoint returns the byte offset of the best split position within the
// first limit runes of text: the last blank line, then the last newline,
// then the last space, then a hard cut. A hard cut backs out of any
// unterminated escape sequence and lands on a rune boundary.
func cutPoint(text string, limit int) int {
	// Byte offset of the rune limit.
	hard := len(text)
	count := 0
	for i := range text {
		if count == limit {
			hard = i
			break
		}
		count++
	}
	if hard >= len(text) {
		return len(text)
	}
	window := text[:hard]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return idx
	}
	// Hard cut: never leave a dangling "&amp"-style sequence open.
	if amp := strings.LastIndexByte(window, '&'); amp > 0 && !strings.ContainsRune(window[amp:], ';') {
		return amp
	}
	for hard > 0 && !utf8.RuneStart(text[hard]) {
		hard--
	}
	return hard
}
