package fuzzy

import (
	"strings"
	"unicode"
)

// LevenshteinDistance calculates the edit distance between two strings
// This measures how many single-character edits (insertions, deletions, or substitutions)
// are required to change one string into another
func LevenshteinDistance(s1, s2 string) int {
	s1 = normalizeString(s1)
	s2 = normalizeString(s2)

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Two rolling rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

// TitleScore reports which fraction of a meeting title's significant words
// appear in text, tolerating typos. 1 means every word was found.
func TitleScore(text, title string) float64 {
	titleWords := significantWords(title)
	if len(titleWords) == 0 {
		return 0
	}
	textWords := strings.Fields(normalizeString(text))

	found := 0
	for _, tw := range titleWords {
		for _, w := range textWords {
			w = strings.Trim(w, ".,;:!?\"'()")
			if w == tw || LevenshteinDistance(w, tw) <= typoThreshold(tw) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(titleWords))
}

// BestTitle returns the index of the title text refers to most closely, or
// -1 when no title shares a word with it. Ties keep the earlier title.
func BestTitle(text string, titles []string) int {
	best, bestScore := -1, 0.0
	for i, title := range titles {
		if score := TitleScore(text, title); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// typoThreshold scales the allowed edit distance with word length
func typoThreshold(word string) int {
	switch n := len([]rune(word)); {
	case n <= 4:
		return 0
	case n < 8:
		return 1
	default:
		return 2
	}
}

// significantWords drops short filler words from a title
func significantWords(title string) []string {
	var words []string
	for _, w := range strings.Fields(normalizeString(title)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "meeting": true,
}

// normalizeString lowercases, strips accents and collapses whitespace
func normalizeString(s string) string {
	s = removeAccents(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// removeAccents removes diacritical marks from a string
func removeAccents(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) { // Mn: Mark, nonspacing
			continue
		}
		switch r {
		case 'á', 'à', 'ả', 'ã', 'ạ', 'ă', 'ắ', 'ằ', 'ẳ', 'ẵ', 'ặ', 'â', 'ấ', 'ầ', 'ẩ', 'ẫ', 'ậ', 'ä', 'å':
			result.WriteRune('a')
		case 'é', 'è', 'ẻ', 'ẽ', 'ẹ', 'ê', 'ế', 'ề', 'ể', 'ễ', 'ệ', 'ë':
			result.WriteRune('e')
		case 'í', 'ì', 'ỉ', 'ĩ', 'ị', 'ï', 'î':
			result.WriteRune('i')
		case 'ó', 'ò', 'ỏ', 'õ', 'ọ', 'ô', 'ố', 'ồ', 'ổ', 'ỗ', 'ộ', 'ơ', 'ớ', 'ờ', 'ở', 'ỡ', 'ợ', 'ö':
			result.WriteRune('o')
		case 'ú', 'ù', 'ủ', 'ũ', 'ụ', 'ư', 'ứ', 'ừ', 'ử', 'ữ', 'ự', 'ü', 'û':
			result.WriteRune('u')
		case 'ý', 'ỳ', 'ỷ', 'ỹ', 'ỵ':
			result.WriteRune('y')
		case 'đ':
			result.WriteRune('d')
		case 'ç':
			result.WriteRune('c')
		case 'ñ':
			result.WriteRune('n')
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
