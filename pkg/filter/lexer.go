package filter

import (
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokString
	tokInt
	tokFloat
	tokOp     // = != < <= > >=
	tokLParen
	tokRParen
	tokComma
	tokStar   // "*" match-all literal
	tokAtNone // "@none" match-none literal
)

type token struct {
	kind tokenKind
	text string // raw text; for tokString, the unescaped contents
	pos  int    // byte offset of the token start
	i    int64
	f    float64
}

// Keywords are matched case-insensitively. The canonical spellings here
// also feed the unknown-operator suggestions.
var keywordNames = []string{
	"AND", "OR", "NOT", "BETWEEN", "IN", "CONTAINS", "STARTS_WITH",
	"ENDS_WITH", "LIKE", "ANY", "ALL", "NONE", "IS", "NULL",
	"true", "false", "null",
}

var keywords = map[string]string{
	"and": "AND", "or": "OR", "not": "NOT", "between": "BETWEEN",
	"in": "IN", "contains": "CONTAINS", "starts_with": "STARTS_WITH",
	"ends_with": "ENDS_WITH", "like": "LIKE", "any": "ANY",
	"all": "ALL", "none": "NONE", "is": "IS", "null": "NULL",
	"true": "TRUE", "false": "FALSE",
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, *ParseError) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '*':
		l.pos++
		return token{kind: tokStar, text: "*", pos: start}, nil
	case c == '@':
		return l.lexAtWord(start)
	case c == '"':
		return l.lexString(start)
	case c == '=':
		l.pos++
		return token{kind: tokOp, text: "=", pos: start}, nil
	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		}
		return token{}, perr(CodeUnexpectedChar, start, "unexpected character %q", string(c))
	case c == '<' || c == '>':
		op := string(c)
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			op += "="
			l.pos++
		}
		return token{kind: tokOp, text: op, pos: start}, nil
	case c == '-' || c >= '0' && c <= '9':
		return l.lexNumber(start)
	case isIdentStart(c):
		return l.lexWord(start)
	default:
		return token{}, perr(CodeUnexpectedChar, start, "unexpected character %q", string(c))
	}
}

func (l *lexer) lexAtWord(start int) (token, *ParseError) {
	l.pos++ // consume '@'
	end := l.pos
	for end < len(l.src) && isIdentPart(l.src[end]) {
		end++
	}
	word := l.src[l.pos:end]
	l.pos = end
	if strings.EqualFold(word, "none") {
		return token{kind: tokAtNone, text: "@none", pos: start}, nil
	}
	return token{}, perr(CodeUnexpectedChar, start, "unknown literal @%s", word)
}

func (l *lexer) lexString(start int) (token, *ParseError) {
	var sb strings.Builder
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		switch c {
		case '"':
			l.pos = i + 1
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case '\\':
			if i+1 >= len(l.src) {
				return token{}, perr(CodeUnterminatedStr, start, "unterminated string literal")
			}
			esc := l.src[i+1]
			switch esc {
			case '"', '\\':
				sb.WriteByte(esc)
			default:
				return token{}, perr(CodeInvalidEscape, i, "invalid escape \\%s", string(esc))
			}
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return token{}, perr(CodeUnterminatedStr, start, "unterminated string literal")
}

func (l *lexer) lexNumber(start int) (token, *ParseError) {
	end := l.pos
	if l.src[end] == '-' {
		end++
	}
	sawDigit := false
	sawDot := false
	sawExp := false
	for end < len(l.src) {
		c := l.src[end]
		switch {
		case c >= '0' && c <= '9':
			sawDigit = true
		case c == '.' && !sawDot && !sawExp:
			sawDot = true
		case (c == 'e' || c == 'E') && sawDigit && !sawExp:
			sawExp = true
			if end+1 < len(l.src) && (l.src[end+1] == '+' || l.src[end+1] == '-') {
				end++
			}
		default:
			goto done
		}
		end++
	}
done:
	text := l.src[start:end]
	if !sawDigit {
		return token{}, perr(CodeInvalidNumber, start, "invalid number %q", text)
	}
	l.pos = end

	// Integral text parses as i64; anything else as f64.
	if !sawDot && !sawExp {
		i, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return token{kind: tokInt, text: text, pos: start, i: i}, nil
		}
		// Out-of-range integers fall through to float.
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, perr(CodeInvalidNumber, start, "invalid number %q", text)
	}
	return token{kind: tokFloat, text: text, pos: start, f: f}, nil
}

func (l *lexer) lexWord(start int) (token, *ParseError) {
	end := l.pos
	for end < len(l.src) && isIdentPart(l.src[end]) {
		end++
	}
	word := l.src[start:end]
	l.pos = end

	if canon, ok := keywords[strings.ToLower(word)]; ok {
		return token{kind: tokKeyword, text: canon, pos: start}, nil
	}
	return token{kind: tokIdent, text: word, pos: start}, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
