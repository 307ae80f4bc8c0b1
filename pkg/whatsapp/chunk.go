package whatsapp

import "strings"

// DefaultWordsLimit is the maximum length of a single outbound text
const DefaultWordsLimit = 1500

// SplitMessage splits text into chunks of at most limit characters. A chunk
// ends at the last newline inside its window when there is one; chunks are
// trimmed and empty chunks dropped. Text within the limit is returned as is.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultWordsLimit
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) && runes[end] != '\n' {
			if pos := lastNewline(runes, start, end); pos > start {
				end = pos
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end < len(runes) && runes[end] == '\n' {
			start = end + 1
		} else {
			start = end
		}
	}
	return chunks
}

func lastNewline(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
