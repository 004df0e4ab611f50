package lspglue

import "unicode/utf16"

// utf16ToRune converts a UTF-16 code-unit column within line into a rune
// column, the seam internal/mirror's DESIGN.md entry calls for: the wire
// protocol counts UTF-16 code units, every internal component counts runes.
func utf16ToRune(line string, utf16Col int) int {
	units := utf16.Encode([]rune(line))
	if utf16Col > len(units) {
		utf16Col = len(units)
	}
	return len(utf16.Decode(units[:utf16Col]))
}
