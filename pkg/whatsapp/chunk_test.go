package whatsapp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short text is untouched", func(t *testing.T) {
		assert.Equal(t, []string{" hola \n"}, SplitMessage(" hola \n", 10))
	})

	t.Run("breaks at the last newline in the window", func(t *testing.T) {
		text := "aaaa\nbbbb\ncccccc"
		assert.Equal(t, []string{"aaaa\nbbbb", "cccccc"}, SplitMessage(text, 12))
	})

	t.Run("hard cut without newline", func(t *testing.T) {
		assert.Equal(t, []string{"abcde", "fghij", "k"}, SplitMessage("abcdefghijk", 5))
	})

	t.Run("newline right at the boundary is consumed", func(t *testing.T) {
		assert.Equal(t, []string{"abcde", "fgh"}, SplitMessage("abcde\nfgh", 5))
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		text := strings.Repeat("ñ", 7)
		chunks := SplitMessage(text, 3)
		assert.Equal(t, []string{"ñññ", "ñññ", "ñ"}, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 3)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		text := strings.Repeat("x", DefaultWordsLimit+1)
		chunks := SplitMessage(text, 0)
		assert.Len(t, chunks, 2)
		assert.Len(t, chunks[0], DefaultWordsLimit)
	})
}
