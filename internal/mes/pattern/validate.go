package pattern

import (
	"fmt"
	"strings"
)

// ValidationResult lists every syntax problem found in a template.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidatePatternSyntax checks a template and accumulates all errors instead of
// stopping at the first one. Calendar semantics are not checked.
func ValidatePatternSyntax(template string) ValidationResult {
	res := ValidationResult{Errors: []string{}}
	if strings.TrimSpace(template) == "" {
		res.Errors = append(res.Errors, "pattern must not be empty")
		return res
	}

	tokens, unclosed := scan(template)
	for _, pos := range unclosed {
		res.Errors = append(res.Errors, fmt.Sprintf("unclosed token at position %d", pos))
	}
	for _, rt := range tokens {
		res.Errors = append(res.Errors, checkToken(rt)...)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func checkToken(rt rawToken) []string {
	pos := rt.span.Start
	var errs []string
	switch TokenType(rt.name) {
	case TokenPrefix:
		if strings.Join(rt.args, ":") == "" {
			errs = append(errs, fmt.Sprintf("PREFIX token at position %d requires a literal value", pos))
		}
	case TokenYear, TokenMonth, TokenDay, TokenWeek, TokenUUID, TokenSite, TokenPart:
		if len(rt.args) > 0 {
			errs = append(errs, fmt.Sprintf("%s token at position %d does not take arguments", rt.name, pos))
		}
	case TokenSeq:
		n, ok := intArg(rt.args, 0)
		if !ok || n < MinSeqLength || n > MaxSeqLength {
			errs = append(errs, fmt.Sprintf("invalid SEQ length %q at position %d: must be an integer between %d and %d",
				argAt(rt.args, 0), pos, MinSeqLength, MaxSeqLength))
		}
		if len(rt.args) > 1 {
			errs = append(errs, fmt.Sprintf("SEQ token at position %d takes a single length argument", pos))
		}
	case TokenRandom:
		cs := Charset(strings.ToLower(strings.TrimSpace(argAt(rt.args, 0))))
		if !validCharset(cs) {
			errs = append(errs, fmt.Sprintf("invalid RANDOM charset %q at position %d: must be one of numeric, alpha, alphanumeric",
				argAt(rt.args, 0), pos))
		}
		n, ok := intArg(rt.args, 1)
		if !ok || n < MinRandomLength || n > MaxRandomLength {
			errs = append(errs, fmt.Sprintf("invalid RANDOM length %q at position %d: must be an integer between %d and %d",
				argAt(rt.args, 1), pos, MinRandomLength, MaxRandomLength))
		}
	case TokenCheck:
		alg := CheckAlgorithm(strings.ToLower(strings.TrimSpace(argAt(rt.args, 0))))
		if alg != CheckLuhn && alg != CheckMod10 {
			errs = append(errs, fmt.Sprintf("invalid CHECK algorithm %q at position %d: must be luhn or mod10",
				argAt(rt.args, 0), pos))
		}
	default:
		if rt.name == "" {
			errs = append(errs, fmt.Sprintf("empty token at position %d", pos))
		} else {
			errs = append(errs, fmt.Sprintf("unknown token type %q at position %d", rt.name, pos))
		}
	}
	return errs
}

func validCharset(cs Charset) bool {
	switch cs {
	case CharsetNumeric, CharsetAlpha, CharsetAlphanumeric:
		return true
	}
	return false
}
