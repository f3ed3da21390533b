package memory

import (
	"math"
	"regexp"
	"strings"

	"github.com/papercomputeco/keepsake/pkg/utils"
)

// Rejection names why a candidate fact was refused. The zero value means the
// candidate passed.
type Rejection string

const (
	RejectTooShort        Rejection = "too_short"
	RejectInstructionLike Rejection = "instruction_like"
	RejectUngrounded      Rejection = "ungrounded"
)

var instructionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:system|developer|overrid(?:e|es|ing|den)|overrode)\b`),
	regexp.MustCompile(`(?i)\bjailbr(?:eak|oken)\w*`),
	regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget)\s+(?:all\s+|any\s+|the\s+|your\s+)?(?:previous|prior|above|earlier|preceding|system|instructions?|rules?)\b`),
	regexp.MustCompile(`(?i)\b(?:always|never)\s+(?:reply|respond|answer|say|tell|mention|ignore|refuse|obey|follow|comply)\b`),
	regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_-]{16,}|ghp_[A-Za-z0-9]{20,}|gh[ousr]_[A-Za-z0-9]{20,}|xox[abprs]-[A-Za-z0-9-]{10,}|AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z_-]{30,})`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`(?i)\b(?:api[_ -]?key|password|passwd|secret|token|bearer)\s*[:=]\s*\S+`),
}

// IsInstructionLike reports whether text looks like a prompt-injection attempt
// or carries a credential. Such text never becomes a fact regardless of how
// well it is grounded.
func IsInstructionLike(text string) bool {
	for _, p := range instructionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsGrounded reports whether candidate is textually supported by source: the
// normalized source contains the normalized candidate, or enough of the
// candidate's tokens appear in the source.
func IsGrounded(candidate, source string) bool {
	normCandidate := normalizeText(candidate)
	normSource := normalizeText(source)
	if normCandidate == "" || normSource == "" {
		return false
	}
	if strings.Contains(normSource, normCandidate) {
		return true
	}

	candidateTokens := tokenize(candidate)
	n := len(candidateTokens)
	if n == 0 {
		return false
	}

	sourceTokens := tokenSet(source)
	overlap := 0
	for _, t := range candidateTokens {
		if _, ok := sourceTokens[t]; ok {
			overlap++
		}
	}

	required := max(2, int(math.Ceil(0.45*float64(n))))
	if overlap >= required {
		return true
	}
	return n <= 3 && overlap == 2
}

// ValidateCandidate runs every check a fact must pass before it reaches the
// store: minimum length, instruction-like text, and grounding in source.
func ValidateCandidate(candidate, source string) Rejection {
	if len([]rune(normalizeText(candidate))) < minFactLength {
		return RejectTooShort
	}
	if IsInstructionLike(candidate) {
		return RejectInstructionLike
	}
	if !IsGrounded(candidate, source) {
		return RejectUngrounded
	}
	return ""
}

// groundedEvidence picks the evidence quote for a fact: the extractor's quote
// when present, else the source itself, bounded. Quotes that fail grounding or
// look like instructions are dropped.
func groundedEvidence(evidence, source string) string {
	quote := cleanContent(evidence)
	if quote == "" {
		quote = source
	}
	quote = utils.Clip(quote, maxEvidenceLength)
	if quote == "" || IsInstructionLike(quote) || !IsGrounded(quote, source) {
		return ""
	}
	return quote
}

