// Package pattern parses serial number templates such as
// "{PREFIX:SN}-{YYYY}{MM}-{SEQ:5}-{CHECK:luhn}" and renders serials from them.
//
// A template is literal text interleaved with bracketed tokens of the form
// {TYPE}, {TYPE:ARG} or {TYPE:ARG1:ARG2}. Only tokens become components; the
// text between them is copied verbatim when a serial is built.
package pattern

import (
	"strconv"
	"strings"
)

// TokenType identifies a template token.
type TokenType string

const (
	TokenPrefix  TokenType = "PREFIX"
	TokenYear    TokenType = "YYYY"
	TokenMonth   TokenType = "MM"
	TokenDay     TokenType = "DD"
	TokenWeek    TokenType = "WW"
	TokenSeq     TokenType = "SEQ"
	TokenRandom  TokenType = "RANDOM"
	TokenCheck   TokenType = "CHECK"
	TokenUUID    TokenType = "UUID"
	TokenSite    TokenType = "SITE"
	TokenPart    TokenType = "PART"
	TokenUnknown TokenType = "UNKNOWN"
)

// Charset is the alphabet of a RANDOM token.
type Charset string

const (
	CharsetNumeric      Charset = "numeric"
	CharsetAlpha        Charset = "alpha"
	CharsetAlphanumeric Charset = "alphanumeric"
)

// CheckAlgorithm is the algorithm of a CHECK token.
type CheckAlgorithm string

const (
	CheckLuhn  CheckAlgorithm = "luhn"
	CheckMod10 CheckAlgorithm = "mod10"
)

// Argument bounds accepted by the validator.
const (
	MinSeqLength    = 1
	MaxSeqLength    = 8
	MinRandomLength = 1
	MaxRandomLength = 32
)

// DefaultTemplate is rendered when a template is blank.
const DefaultTemplate = "{PREFIX:SN}-{YYYY}{MM}{DD}-{SEQ:6}"

const defaultSeqLength = 6

// Span is the byte range [Start, End) a token occupies in its template.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Component is one parsed token. The concrete types below are the only
// implementations.
type Component interface {
	Type() TokenType
	Span() Span
	Raw() string
}

type token struct {
	span Span
	raw  string
}

func (t token) Span() Span  { return t.span }
func (t token) Raw() string { return t.raw }

// PrefixToken emits Value verbatim.
type PrefixToken struct {
	token
	Value string
}

func (PrefixToken) Type() TokenType { return TokenPrefix }

// DateToken emits a date part of the generation timestamp.
type DateToken struct {
	token
	Part TokenType
}

func (t DateToken) Type() TokenType { return t.Part }

// SeqToken emits the zero padded sequential counter.
type SeqToken struct {
	token
	Length int
}

func (SeqToken) Type() TokenType { return TokenSeq }

// RandomToken emits Length random characters drawn from Charset.
type RandomToken struct {
	token
	Charset Charset
	Length  int
}

func (RandomToken) Type() TokenType { return TokenRandom }

// CheckToken emits one check digit computed over everything emitted before it.
type CheckToken struct {
	token
	Algorithm CheckAlgorithm
}

func (CheckToken) Type() TokenType { return TokenCheck }

// UUIDToken emits a lowercase RFC 4122 UUID.
type UUIDToken struct {
	token
}

func (UUIDToken) Type() TokenType { return TokenUUID }

// ContextToken is substituted from the generation context (SITE or PART).
type ContextToken struct {
	token
	Field TokenType
}

func (t ContextToken) Type() TokenType { return t.Field }

// UnknownToken keeps an unrecognized token so it can be reported and emitted as is.
type UnknownToken struct {
	token
	Name string
	Args []string
}

func (UnknownToken) Type() TokenType { return TokenUnknown }

// Metadata summarizes which token kinds a template uses.
type Metadata struct {
	HasDate         bool `json:"has_date"`
	HasSequential   bool `json:"has_sequential"`
	HasRandom       bool `json:"has_random"`
	HasCheckDigit   bool `json:"has_check_digit"`
	HasUUID         bool `json:"has_uuid"`
	HasContext      bool `json:"has_context"`
	IsDeterministic bool `json:"is_deterministic"`
}

// ParsedPattern is a tokenized template.
type ParsedPattern struct {
	Template   string
	Components []Component
	Metadata   Metadata
}

// rawToken is the untyped output of the scanner.
type rawToken struct {
	name string
	args []string
	span Span
	raw  string
}

// scan finds every bracketed token in a single left-to-right pass. An opening
// brace without a closing one is left as literal text.
func scan(template string) (tokens []rawToken, unclosed []int) {
	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			break
		}
		open += i
		end := strings.IndexByte(template[open+1:], '}')
		if end < 0 {
			unclosed = append(unclosed, open)
			break
		}
		end += open + 1
		// "{{SEQ:3}" - the innermost brace starts the token
		if inner := strings.LastIndexByte(template[open+1:end], '{'); inner >= 0 {
			unclosed = append(unclosed, open)
			open += inner + 1
		}
		body := template[open+1 : end]
		parts := strings.Split(body, ":")
		tokens = append(tokens, rawToken{
			name: strings.ToUpper(strings.TrimSpace(parts[0])),
			args: parts[1:],
			span: Span{Start: open, End: end + 1},
			raw:  template[open : end+1],
		})
		i = end + 1
	}
	return tokens, unclosed
}

// ParsePattern tokenizes a template into typed components. It never fails;
// malformed tokens are kept with their best-effort arguments and reported by
// ValidatePatternSyntax.
func ParsePattern(template string) *ParsedPattern {
	raws, _ := scan(template)
	p := &ParsedPattern{Template: template, Components: make([]Component, 0, len(raws))}
	for _, rt := range raws {
		p.Components = append(p.Components, toComponent(rt))
	}
	p.Metadata = metadataOf(p)
	return p
}

// ExtractComponents returns the ordered components of a template.
func ExtractComponents(template string) []Component {
	return ParsePattern(template).Components
}

// GetPatternMetadata reports which token kinds a template uses.
func GetPatternMetadata(template string) Metadata {
	return ParsePattern(template).Metadata
}

func toComponent(rt rawToken) Component {
	base := token{span: rt.span, raw: rt.raw}
	switch TokenType(rt.name) {
	case TokenPrefix:
		return PrefixToken{token: base, Value: strings.Join(rt.args, ":")}
	case TokenYear, TokenMonth, TokenDay, TokenWeek:
		return DateToken{token: base, Part: TokenType(rt.name)}
	case TokenSeq:
		n, _ := intArg(rt.args, 0)
		return SeqToken{token: base, Length: n}
	case TokenRandom:
		cs := Charset(strings.ToLower(strings.TrimSpace(argAt(rt.args, 0))))
		n, _ := intArg(rt.args, 1)
		return RandomToken{token: base, Charset: cs, Length: n}
	case TokenCheck:
		return CheckToken{token: base, Algorithm: CheckAlgorithm(strings.ToLower(strings.TrimSpace(argAt(rt.args, 0))))}
	case TokenUUID:
		return UUIDToken{token: base}
	case TokenSite, TokenPart:
		return ContextToken{token: base, Field: TokenType(rt.name)}
	default:
		return UnknownToken{token: base, Name: rt.name, Args: rt.args}
	}
}

func metadataOf(p *ParsedPattern) Metadata {
	var m Metadata
	for _, c := range p.Components {
		switch c.(type) {
		case DateToken:
			m.HasDate = true
		case SeqToken:
			m.HasSequential = true
		case RandomToken:
			m.HasRandom = true
		case CheckToken:
			m.HasCheckDigit = true
		case UUIDToken:
			m.HasUUID = true
		case ContextToken:
			m.HasContext = true
		}
	}
	m.IsDeterministic = strings.TrimSpace(p.Template) != "" && !m.HasRandom && !m.HasUUID
	return m
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func intArg(args []string, i int) (int, bool) {
	s := strings.TrimSpace(argAt(args, i))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
