package room

// IsEmojiOnly reports whether every character of s lies outside the ASCII
// range. The empty string is not emoji-only.
func IsEmojiOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= 127 {
			return false
		}
	}
	return true
}
