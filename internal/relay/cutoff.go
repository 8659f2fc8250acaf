package relay

// Cutoff returns how many characters the visible text must grow before
// another edit is issued. Thresholds rise with the length of the content
// and are stricter in group chats, where edits are rate limited harder.
func Cutoff(contentLength int, isGroup bool) int {
	if isGroup {
		switch {
		case contentLength > 1000:
			return 180
		case contentLength > 200:
			return 120
		case contentLength > 50:
			return 90
		default:
			return 50
		}
	}
	switch {
	case contentLength > 1000:
		return 90
	case contentLength > 200:
		return 45
	case contentLength > 50:
		return 25
	default:
		return 15
	}
}
