package memory

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/keepsake/pkg/utils"
)

const (
	maxContentLength  = 320
	maxFactLength     = 190
	maxEvidenceLength = 140
	maxQueryLength    = 420
	maxQueryTokens    = 32
	minTokenLength    = 3
	minFactLength     = 4
)

var (
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`<(?:@[!&]?|#)\d+>|@[\p{L}\p{N}_.]+`)
)

// cleanContent collapses whitespace, replaces pipes (the journal's field
// separator), and bounds message content.
func cleanContent(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return utils.Clip(utils.CollapseWhitespace(s), maxContentLength)
}

// normalizeFact collapses whitespace, bounds the fact, and makes sure it ends
// in sentence punctuation.
func normalizeFact(s string) string {
	s = utils.CollapseWhitespace(s)
	if s == "" {
		return ""
	}

	s = utils.Clip(s, maxFactLength-1)
	if r, _ := utf8.DecodeLastRuneInString(s); !strings.ContainsRune(".!?", r) {
		s += "."
	}
	return s
}

// normalizeQuery collapses whitespace and bounds a query without changing case.
func normalizeQuery(s string) string {
	return utils.Clip(utils.CollapseWhitespace(s), maxQueryLength)
}

// normalizeText lowercases s and strips URLs, mentions, and every character
// that is not a letter or digit, collapsing what remains.
func normalizeText(s string) string {
	s = urlPattern.ReplaceAllString(s, " ")
	s = mentionPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return utils.CollapseWhitespace(s)
}

// tokenize returns the distinct alphanumeric tokens of at least three runes in
// normalized text, in first-seen order.
func tokenize(s string) []string {
	fields := strings.Fields(normalizeText(s))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLength {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// QueryTokens returns the lexical tokens used to match a query, capped at 32.
func QueryTokens(query string) []string {
	tokens := tokenize(query)
	if len(tokens) > maxQueryTokens {
		tokens = tokens[:maxQueryTokens]
	}
	return tokens
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
