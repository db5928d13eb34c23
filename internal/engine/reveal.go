package engine

import "unicode"

// RevealStrategy decides how far each typing step reveals a message.
type RevealStrategy interface {
	// Stops returns the strictly increasing cursor positions (rune counts)
	// a session walks through. The first stop is shown immediately, the
	// last must equal len(text).
	Stops(text []rune) []int
}

// WordReveal reveals a message one whitespace-delimited word per step.
// A word's trailing whitespace is revealed with it. A single-word message
// is fully shown at start.
type WordReveal struct{}

// Stops returns i+1 for every rune index i that is whitespace or the last
// rune of the text. Leading whitespace belongs to the first word.
func (WordReveal) Stops(text []rune) []int {
	if len(text) == 0 {
		return []int{0}
	}

	start := 0
	for start < len(text) && unicode.IsSpace(text[start]) {
		start++
	}
	if start == len(text) {
		return []int{len(text)}
	}

	var stops []int
	last := len(text) - 1
	for i := start; i <= last; i++ {
		if unicode.IsSpace(text[i]) || i == last {
			stops = append(stops, i+1)
		}
	}
	return stops
}
