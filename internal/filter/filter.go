// Package filter parses the textual equality filters accepted by the
// command line and the HTTP endpoint, e.g.
//
//	year=2017 month=1 sector="north-east"
//
// Terms are separated by whitespace or commas. Values are numbers, quoted
// strings, true, false, null or bare words (read as strings).
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
)

//nolint:govet // participle grammar tags are not standard struct tags
type filterGrammar struct {
	Terms []*termGrammar `parser:"( @@ \",\"? )*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type termGrammar struct {
	Field string        `parser:"( @Ident | @String ) \"=\""`
	Value *valueGrammar `parser:"@@"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type valueGrammar struct {
	Number *string `parser:"  @Number"`
	String *string `parser:"| @String"`
	Word   *string `parser:"| @Ident"`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Number", Pattern: `[-+]?[0-9]+(\.[0-9]+)?([eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Punct", Pattern: `[=,]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var filterParser = participle.MustBuild[filterGrammar](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
)

// Parse parses s into a filter, keeping the terms in the order written.
func Parse(s string) (types.Filter, error) {
	parsed, err := filterParser.ParseString("", s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidArgument,
			fmt.Sprintf("invalid filter %q", s), err)
	}

	filter := make(types.Filter, 0, len(parsed.Terms))
	for _, term := range parsed.Terms {
		field, err := unquote(term.Field)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidArgument,
				fmt.Sprintf("invalid field name %s", term.Field), err)
		}
		value, err := term.Value.value()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidArgument,
				fmt.Sprintf("invalid value for %s", field), err).WithFields(field)
		}
		filter = append(filter, types.Term{Field: field, Value: value})
	}
	return filter, nil
}

// Format renders f back into the syntax accepted by Parse.
func Format(f types.Filter) string {
	parts := make([]string, len(f))
	for i, term := range f {
		parts[i] = formatField(term.Field) + "=" + formatValue(term.Value)
	}
	return strings.Join(parts, " ")
}

func (v *valueGrammar) value() (any, error) {
	switch {
	case v.Number != nil:
		return parseNumber(*v.Number)
	case v.String != nil:
		return unquote(*v.String)
	case v.Word != nil:
		switch *v.Word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return *v.Word, nil
	}
	return nil, fmt.Errorf("empty value")
}

func parseNumber(s string) (any, error) {
	if strings.ContainsAny(s, ".eE") {
		return strconv.ParseFloat(s, 64)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 64)
}

// unquote strips the quotes of a String token; other tokens pass through.
func unquote(s string) (string, error) {
	if len(s) < 2 {
		return s, nil
	}
	switch s[0] {
	case '"':
		return strconv.Unquote(s)
	case '\'':
		body := s[1 : len(s)-1]
		var sb strings.Builder
		for i := 0; i < len(body); i++ {
			if body[i] == '\\' && i+1 < len(body) {
				i++
			}
			sb.WriteByte(body[i])
		}
		return sb.String(), nil
	}
	return s, nil
}

func formatField(name string) string {
	if isIdent(name) {
		return name
	}
	return strconv.Quote(name)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
