// Package query implements the compact text query language used by every
// search surface: a tokenizer, typed search requests built from tokens, and
// the predicates those requests produce for in-memory and SQL collections.
//
// A query is a whitespace separated list of tokens. Each token is
// key:value, key:"quoted value" or a bare value:
//
//	definition:runtime count:10 started:~7 kind:pr
//	text:"Unable to load the service index" jobname:windows
package query

import (
	"strings"
	"unicode"
)

// Token is one key/value pair of a query string. Key is lowercased and
// empty for bare values. Quoted records that the value was written inside
// double quotes.
type Token struct {
	Key    string
	Value  string
	Quoted bool
}

// Tokenize splits a query into tokens in left-to-right order.
//
// Whitespace separates tokens except inside a double-quoted span. A token is
// split on its first colon outside quotes, provided no quoted span came
// before it: once a token has been quoted it is a single value, so
// `"a b":c` is the bare value `a b:c`. An unterminated quote takes the rest
// of the input as part of the value.
func Tokenize(input string) []Token {
	var (
		tokens  []Token
		buf     strings.Builder
		key     string
		hasKey  bool
		quoted  bool
		inQuote bool
		started bool
	)

	flush := func() {
		if !started {
			return
		}
		tok := Token{Value: buf.String(), Quoted: quoted}
		if hasKey {
			tok.Key = strings.ToLower(key)
		}
		tokens = append(tokens, tok)
		buf.Reset()
		key, hasKey, quoted, started = "", false, false, false
	}

	for _, r := range input {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
			started = true
		case inQuote:
			buf.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case r == ':' && !hasKey && !quoted:
			key = buf.String()
			hasKey = true
			started = true
			buf.Reset()
		default:
			buf.WriteRune(r)
			started = true
		}
	}
	flush()

	return tokens
}

// FormatToken renders a key/value pair as a token, quoting the value when it
// would not survive Tokenize unquoted.
func FormatToken(key, value string) string {
	if needsQuoting(value) {
		value = `"` + value + `"`
	}
	if key == "" {
		return value
	}
	return key + ":" + value
}

func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		if unicode.IsSpace(r) || r == ':' {
			return true
		}
	}
	return false
}

// joinTokens renders canonical tokens separated by single spaces.
func joinTokens(parts []string) string {
	return strings.Join(parts, " ")
}
