package pipeline

// prefixRunes is the length of the routing prefix that upstream labels put
// in front of the payload.
const prefixRunes = 2

// CleanText drops the first two characters of a decoded payload. Characters
// are counted as runes, so multi-byte prefixes are removed whole. Texts of
// two characters or fewer become empty.
func CleanText(text string) string {
	n := 0
	for i := range text {
		if n == prefixRunes {
			return text[i:]
		}
		n++
	}
	return ""
}
