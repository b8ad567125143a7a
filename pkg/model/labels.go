package model

import (
	"regexp"
	"strings"
)

var splitWordsPattern = regexp.MustCompile(`[_\-\s]+`)

// DefaultLabel turns a field name or path into a human label, using the last
// non-index path segment ("history.0.startDate" -> "Start Date").
func DefaultLabel(path string) string {
	segments := SplitPath(path)
	name := ""
	for idx := len(segments) - 1; idx >= 0; idx-- {
		if _, isIndex := ParseIndex(segments[idx]); !isIndex {
			name = segments[idx]
			break
		}
	}
	if name == "" {
		return ""
	}

	var words []string
	for _, word := range splitWordsPattern.Split(name, -1) {
		if word == "" {
			continue
		}
		words = append(words, strings.Fields(splitCamel(word))...)
	}
	for idx, word := range words {
		words[idx] = titleCase(word)
	}
	return strings.Join(words, " ")
}

func splitCamel(input string) string {
	var out strings.Builder
	for i, r := range input {
		if i > 0 && isBoundary(input, i, r) {
			out.WriteRune(' ')
		}
		out.WriteRune(r)
	}
	return out.String()
}

func isBoundary(input string, index int, r rune) bool {
	prev := rune(input[index-1])
	return (isLower(prev) && isUpper(r)) || (isLetter(prev) && isDigit(r)) || (isDigit(prev) && isLetter(r))
}

func isUpper(r rune) bool  { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool  { return r >= 'a' && r <= 'z' }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return isUpper(r) || isLower(r) }

func titleCase(word string) string {
	if word == "" {
		return ""
	}
	// acronyms such as "ID" or "SSN" keep their casing
	if strings.ToUpper(word) == word && len(word) > 1 {
		return word
	}
	lower := strings.ToLower(word)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
