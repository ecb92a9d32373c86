package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

const uuidExpr = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

// ValidateAgainstPattern reports whether candidate has the shape template
// produces: literal spans must match exactly and fixed-length tokens must match
// in length and charset. Value ranges are not checked, so a day of "32" passes.
// SEQ is a minimum width, since a counter wider than its token is emitted in
// full, and SITE/PART may be empty when the context carries no value.
func ValidateAgainstPattern(candidate, template string) bool {
	re, err := compile(ParsePattern(template))
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}

func compile(p *ParsedPattern) (*regexp.Regexp, error) {
	if strings.TrimSpace(p.Template) == "" {
		p = defaultPattern
	}
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, c := range p.Components {
		sp := c.Span()
		b.WriteString(regexp.QuoteMeta(p.Template[last:sp.Start]))
		b.WriteString(expr(c))
		last = sp.End
	}
	b.WriteString(regexp.QuoteMeta(p.Template[last:]))
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func expr(c Component) string {
	switch t := c.(type) {
	case PrefixToken:
		return regexp.QuoteMeta(t.Value)
	case DateToken:
		if t.Part == TokenYear {
			return `[0-9]{4}`
		}
		return `[0-9]{2}`
	case SeqToken:
		return fmt.Sprintf(`[0-9]{%d,}`, seqLength(t.Length))
	case RandomToken:
		n := clamp(t.Length, MinRandomLength, MaxRandomLength)
		switch t.Charset {
		case CharsetNumeric:
			return fmt.Sprintf(`[0-9]{%d}`, n)
		case CharsetAlpha:
			return fmt.Sprintf(`[A-Z]{%d}`, n)
		default:
			return fmt.Sprintf(`[A-Z0-9]{%d}`, n)
		}
	case CheckToken:
		return `[0-9]`
	case UUIDToken:
		return uuidExpr
	case ContextToken:
		return `.*?`
	default:
		return regexp.QuoteMeta(c.Raw())
	}
}
