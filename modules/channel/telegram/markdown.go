package telegram

import "strings"

// ParseModeMarkdownV2 is the parse mode used for formatted replies.
const ParseModeMarkdownV2 = "MarkdownV2"

// markdownV2SpecialChars lists all characters that must be escaped in Telegram MarkdownV2.
var markdownV2SpecialChars = strings.NewReplacer(
	`\`, `\\`,
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

// codeSpecialChars are the only characters escaped inside code spans.
var codeSpecialChars = strings.NewReplacer("\\", "\\\\", "`", "\\`")

// linkURLSpecialChars are escaped inside the (...) part of a link.
var linkURLSpecialChars = strings.NewReplacer("\\", "\\\\", ")", "\\)")

// EscapeMarkdownV2 escapes all special characters for Telegram MarkdownV2 format.
func EscapeMarkdownV2(text string) string {
	return markdownV2SpecialChars.Replace(text)
}

// FormatMarkdownV2 converts the markdown dialect produced by chat models
// into Telegram MarkdownV2. It understands ```fenced blocks```, `code`,
// **bold**, *italic*, _italic_, __underline__ and [links](url); everything
// else is escaped. Unbalanced markers are printed literally.
func FormatMarkdownV2(text string) string {
	lines := strings.Split(text, "\n")
	var out strings.Builder
	inFence := false

	for i, line := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out.WriteString(strings.TrimSpace(line))
			continue
		}
		if inFence {
			out.WriteString(codeSpecialChars.Replace(line))
			continue
		}
		out.WriteString(formatInline([]rune(line)))
	}
	if inFence {
		out.WriteString("\n```")
	}
	return out.String()
}

// formatInline converts one line outside fenced blocks.
func formatInline(r []rune) string {
	var out strings.Builder
	n := len(r)

	for i := 0; i < n; {
		switch {
		case r[i] == '`':
			if end := indexRune(r, i+1, '`'); end > 0 {
				out.WriteByte('`')
				out.WriteString(codeSpecialChars.Replace(string(r[i+1 : end])))
				out.WriteByte('`')
				i = end + 1
				continue
			}

		case hasPair(r, i, '*'):
			if end := indexPair(r, i+2, '*'); end > 0 {
				out.WriteString("*" + EscapeMarkdownV2(string(r[i+2:end])) + "*")
				i = end + 2
				continue
			}

		case hasPair(r, i, '_'):
			if end := indexPair(r, i+2, '_'); end > 0 {
				out.WriteString("__" + EscapeMarkdownV2(string(r[i+2:end])) + "__")
				i = end + 2
				continue
			}

		case r[i] == '*' || r[i] == '_':
			if end := indexRune(r, i+1, r[i]); end > i+1 {
				out.WriteString("_" + EscapeMarkdownV2(string(r[i+1:end])) + "_")
				i = end + 1
				continue
			}

		case r[i] == '[':
			if label, url, next, ok := parseLink(r, i); ok {
				out.WriteString("[" + EscapeMarkdownV2(label) + "](" + linkURLSpecialChars.Replace(url) + ")")
				i = next
				continue
			}
		}

		out.WriteString(EscapeMarkdownV2(string(r[i])))
		i++
	}
	return out.String()
}

// parseLink reads "[label](url)" starting at i.
func parseLink(r []rune, i int) (label, url string, next int, ok bool) {
	closeLabel := indexRune(r, i+1, ']')
	if closeLabel < 0 || closeLabel+1 >= len(r) || r[closeLabel+1] != '(' {
		return "", "", 0, false
	}
	closeURL := indexRune(r, closeLabel+2, ')')
	if closeURL < 0 {
		return "", "", 0, false
	}
	return string(r[i+1 : closeLabel]), string(r[closeLabel+2 : closeURL]), closeURL + 1, true
}

func hasPair(r []rune, i int, delim rune) bool {
	return i+1 < len(r) && r[i] == delim && r[i+1] == delim
}

// indexRune returns the index of delim at or after start, or -1.
func indexRune(r []rune, start int, delim rune) int {
	for i := start; i < len(r); i++ {
		if r[i] == delim {
			return i
		}
	}
	return -1
}

// indexPair returns the index of the first rune of a doubled delim at or
// after start, or -1.
func indexPair(r []rune, start int, delim rune) int {
	for i := start; i < len(r)-1; i++ {
		if r[i] == delim && r[i+1] == delim {
			return i
		}
	}
	return -1
}
