package sqlguard

import (
	"strings"
	"unicode"
)

type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenPlaceholder
	TokenString
	TokenQuotedIdent
	TokenComment
	TokenSpace
	TokenSemicolon
	TokenPunct
)

// Token is a lexical slice of a statement. Text is the exact source text, so
// concatenating every token's Text reproduces the input.
type Token struct {
	Kind TokenKind
	Text string
}

// Name returns the placeholder name without its leading colon.
func (t Token) Name() string {
	if t.Kind != TokenPlaceholder {
		return ""
	}
	return t.Text[1:]
}

// Tokenize splits sqlText into tokens. Named placeholders use the :name form;
// a double colon is a cast and never starts a placeholder. Unterminated
// strings and comments run to the end of the input.
func Tokenize(sqlText string) []Token {
	tokens := make([]Token, 0, len(sqlText)/4)
	runes := []rune(sqlText)
	n := len(runes)

	emit := func(kind TokenKind, start, end int) {
		tokens = append(tokens, Token{Kind: kind, Text: string(runes[start:end])})
	}

	for i := 0; i < n; {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			j := i + 1
			for j < n && unicode.IsSpace(runes[j]) {
				j++
			}
			emit(TokenSpace, i, j)
			i = j
		case r == '\'':
			j := scanQuoted(runes, i, '\'')
			emit(TokenString, i, j)
			i = j
		case r == '"' || r == '`':
			j := scanQuoted(runes, i, r)
			emit(TokenQuotedIdent, i, j)
			i = j
		case r == '-' && i+1 < n && runes[i+1] == '-':
			j := i + 2
			for j < n && runes[j] != '\n' {
				j++
			}
			emit(TokenComment, i, j)
			i = j
		case r == '/' && i+1 < n && runes[i+1] == '*':
			j := i + 2
			for j < n && !(runes[j] == '*' && j+1 < n && runes[j+1] == '/') {
				j++
			}
			j = min(j+2, n)
			emit(TokenComment, i, j)
			i = j
		case r == ';':
			emit(TokenSemicolon, i, i+1)
			i++
		case r == ':' && i+1 < n && runes[i+1] == ':':
			emit(TokenPunct, i, i+2)
			i += 2
		case r == ':' && i+1 < n && isIdentStart(runes[i+1]):
			j := i + 2
			for j < n && isIdentPart(runes[j]) {
				j++
			}
			emit(TokenPlaceholder, i, j)
			i = j
		case isIdentStart(r):
			j := i + 1
			for j < n && isIdentPart(runes[j]) {
				j++
			}
			emit(TokenWord, i, j)
			i = j
		default:
			emit(TokenPunct, i, i+1)
			i++
		}
	}
	return tokens
}

func scanQuoted(runes []rune, start int, quote rune) int {
	n := len(runes)
	j := start + 1
	for j < n {
		if runes[j] == quote {
			if j+1 < n && runes[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return n
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// keyword lower-cases word tokens for keyword comparisons.
func keyword(t Token) string {
	if t.Kind != TokenWord {
		return ""
	}
	return strings.ToLower(t.Text)
}
