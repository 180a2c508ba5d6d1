// Package skills extracts skill tokens and experience requirements from free text.
package skills

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxPlausibleYears = 50

var yearsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*\+?\s*(?:years?|yrs?)`),
	regexp.MustCompile(`(\d+)\s*(?:-|to|–)\s*\d+\s*(?:years?|yrs?)`),
	regexp.MustCompile(`minimum\s+(?:of\s+)?(\d+)\s*(?:years?|yrs?)`),
	regexp.MustCompile(`at\s+least\s+(\d+)\s*(?:years?|yrs?)`),
}

// Extract returns the vocabulary terms found in text as whole words,
// matched case-insensitively. Longer terms are matched first and consume
// their span, so "Apache Spark" is not also reported as "Spark" unless
// "Spark" appears on its own elsewhere. The result uses the vocabulary
// spelling, is deduplicated and sorted.
func Extract(text string, vocabulary []string) []string {
	if strings.TrimSpace(text) == "" || len(vocabulary) == 0 {
		return []string{}
	}

	terms := slices.Clone(vocabulary)
	slices.SortStableFunc(terms, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})

	haystack := []rune(strings.ToLower(text))
	consumed := make([]bool, len(haystack))

	found := make(map[string]struct{})
	for _, term := range terms {
		needle := []rune(strings.ToLower(strings.TrimSpace(term)))
		if len(needle) == 0 {
			continue
		}
		if matchTerm(haystack, consumed, needle) {
			found[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(found))
	for term := range found {
		result = append(result, term)
	}
	slices.Sort(result)

	return result
}

// ExtractEach is like Extract but matches every term on its own, so a
// resume listing "Apache Spark" yields both "Apache Spark" and "Spark".
func ExtractEach(text string, vocabulary []string) []string {
	found := make([]string, 0, len(vocabulary))
	for _, term := range vocabulary {
		if Contains(text, term) {
			found = append(found, term)
		}
	}
	slices.Sort(found)

	return slices.Compact(found)
}

// Contains reports whether term occurs in text as a whole word.
func Contains(text, term string) bool {
	return len(Extract(text, []string{term})) == 1
}

// ExperienceYears returns the largest plausible number of years mentioned
// next to the word "years", or 0.
func ExperienceYears(text string) int {
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return 0
	}

	best := 0
	for _, re := range yearsPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n > maxPlausibleYears {
				continue
			}
			if n > best {
				best = n
			}
		}
	}

	return best
}

func matchTerm(haystack []rune, consumed []bool, needle []rune) bool {
	matched := false
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if !equalAt(haystack, needle, i) {
			continue
		}
		end := i + len(needle)
		if i > 0 && isWordRune(haystack[i-1]) {
			continue
		}
		if end < len(haystack) && isWordRune(haystack[end]) {
			continue
		}
		if slices.Contains(consumed[i:end], true) {
			continue
		}
		for j := i; j < end; j++ {
			consumed[j] = true
		}
		matched = true
		i = end - 1
	}
	return matched
}

func equalAt(haystack, needle []rune, at int) bool {
	for j, r := range needle {
		if haystack[at+j] != r {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#'
}
