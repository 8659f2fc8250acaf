package relay

import "unicode/utf8"

// Chunk splits text into ordered pieces of at most maxSize characters.
// Pieces never split a UTF-8 sequence and their concatenation equals text.
// An empty text yields no pieces; a non-positive maxSize yields text whole.
func Chunk(text string, maxSize int) []string {
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		end, count := 0, 0
		for end < len(text) && count < maxSize {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			count++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}

// length returns the number of characters in s.
func length(s string) int {
	return utf8.RuneCountInString(s)
}
