package pattern

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context carries the values a template is rendered with.
type Context struct {
	SiteID     string
	SiteCode   string
	PartID     string
	PartNumber string
	Timestamp  time.Time
	Sequence   int64
	// Fields overrides SITE/PART substitution when set, keyed by token name.
	Fields map[string]string
}

const (
	numericAlphabet      = "0123456789"
	alphaAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	alphanumericAlphabet = alphaAlphabet + numericAlphabet
)

var defaultPattern = ParsePattern(DefaultTemplate)

// GenerateSerial parses template and renders it with ctx.
func GenerateSerial(template string, ctx Context) string {
	return BuildSerial(ParsePattern(template), ctx)
}

// BuildSerial renders a parsed pattern. It never fails: a blank template falls
// back to DefaultTemplate, out-of-range arguments are clamped and unknown tokens
// are copied verbatim.
func BuildSerial(p *ParsedPattern, ctx Context) string {
	if p == nil || strings.TrimSpace(p.Template) == "" {
		p = defaultPattern
	}
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now().UTC()
	}

	var b strings.Builder
	last := 0
	for _, c := range p.Components {
		sp := c.Span()
		b.WriteString(p.Template[last:sp.Start])
		b.WriteString(render(c, ctx, b.String()))
		last = sp.End
	}
	b.WriteString(p.Template[last:])

	out := b.String()
	if strings.TrimSpace(out) == "" && p != defaultPattern {
		return BuildSerial(defaultPattern, ctx)
	}
	return out
}

func render(c Component, ctx Context, emitted string) string {
	switch t := c.(type) {
	case PrefixToken:
		return t.Value
	case DateToken:
		return renderDate(t.Part, ctx.Timestamp)
	case SeqToken:
		seq := ctx.Sequence
		if seq < 0 {
			seq = 0
		}
		return fmt.Sprintf("%0*d", seqLength(t.Length), seq)
	case RandomToken:
		return randomString(alphabetOf(t.Charset), clamp(t.Length, MinRandomLength, MaxRandomLength))
	case CheckToken:
		return string(rune('0' + CheckDigit(t.Algorithm, emitted)))
	case UUIDToken:
		return uuid.NewString()
	case ContextToken:
		return contextValue(t.Field, ctx)
	default:
		return c.Raw()
	}
}

func renderDate(part TokenType, ts time.Time) string {
	switch part {
	case TokenYear:
		return fmt.Sprintf("%04d", ts.Year())
	case TokenMonth:
		return fmt.Sprintf("%02d", int(ts.Month()))
	case TokenDay:
		return fmt.Sprintf("%02d", ts.Day())
	default:
		_, week := ts.ISOWeek()
		return fmt.Sprintf("%02d", week)
	}
}

func contextValue(field TokenType, ctx Context) string {
	if v := ctx.Fields[string(field)]; v != "" {
		return v
	}
	if field == TokenSite {
		if ctx.SiteCode != "" {
			return ctx.SiteCode
		}
		return ctx.SiteID
	}
	if ctx.PartNumber != "" {
		return ctx.PartNumber
	}
	return ctx.PartID
}

func seqLength(n int) int {
	if n <= 0 {
		return defaultSeqLength
	}
	return clamp(n, MinSeqLength, MaxSeqLength)
}

func alphabetOf(cs Charset) string {
	switch cs {
	case CharsetNumeric:
		return numericAlphabet
	case CharsetAlpha:
		return alphaAlphabet
	default:
		return alphanumericAlphabet
	}
}

// randomString is not cryptographically secure; random tokens only need to be
// unlikely to collide.
func randomString(alphabet string, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// CheckDigit computes the check digit of s. Letters contribute their base-36
// value (A=10 .. Z=35) as two digits, other non-digit characters are skipped.
// Unknown algorithms fall back to luhn.
func CheckDigit(alg CheckAlgorithm, s string) int {
	digits := digitStream(s)
	if alg == CheckMod10 {
		return mod10Digit(digits)
	}
	return luhnDigit(digits)
}

func digitStream(s string) []int {
	digits := make([]int, 0, len(s))
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			digits = append(digits, v/10, v%10)
		}
	}
	return digits
}

// luhnDigit doubles every second digit starting from the rightmost one, since
// the check digit is appended to the right.
func luhnDigit(digits []int) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// mod10Digit uses GS1 weights: 3 for the rightmost digit, alternating with 1.
func mod10Digit(digits []int) int {
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += digits[i] * weight
		weight = 4 - weight
	}
	return (10 - sum%10) % 10
}
