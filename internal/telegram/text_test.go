package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &amp; b &lt;c&gt;", EscapeHTML("a & b <c>"))
	assert.Equal(t, "plain", EscapeHTML("plain"))
}

func TestSplitByLimitShortText(t *testing.T) {
	chunks := SplitByLimit("hello", 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestSplitByLimitPrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	chunks := SplitByLimit(text, 60)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 40), chunks[0])
	assert.Equal(t, strings.Repeat("b", 40), chunks[1])
}

func TestSplitByLimitFallsBackToLineThenSpace(t *testing.T) {
	text := "first line\nsecond line third"
	chunks := SplitByLimit(text, 15)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "first line", chunks[0])

	spaced := "word word word word"
	chunks = SplitByLimit(spaced, 11)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "word word", chunks[0])
}

func TestSplitByLimitNeverBreaksEscapeSequence(t *testing.T) {
	// A hard cut inside "&amp;" must back out to before the ampersand.
	text := strings.Repeat("x", 8) + "&amp;" + strings.Repeat("y", 8)
	for limit := 9; limit < 13; limit++ {
		chunks := SplitByLimit(text, limit)
		for _, chunk := range chunks {
			if idx := strings.LastIndexByte(chunk, '&'); idx >= 0 {
				assert.Contains(t, chunk[idx:], ";",
					"chunk %q splits an escape sequence at limit %d", chunk, limit)
			}
		}
	}
}

func TestSplitByLimitRespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("ж", 50)
	chunks := SplitByLimit(text, 20)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 20)
	}
}

func TestSplitByLimitReassembles(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks := SplitByLimit(text, 12)
	joined := strings.Join(chunks, " ")
	assert.Equal(t, text, joined)
}

func TestTruncateCaption(t *testing.T) {
	short := "fits"
	assert.Equal(t, short, TruncateCaption(short))

	long := strings.Repeat("word ", 400)
	got := TruncateCaption(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxCaptionLength)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestFitsCaption(t *testing.T) {
	assert.True(t, FitsCaption(strings.Repeat("a", MaxCaptionLength)))
	assert.False(t, FitsCaption(strings.Repeat("a", MaxCaptionLength+1)))
}
