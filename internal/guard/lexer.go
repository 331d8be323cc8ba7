package guard

import (
	"errors"
	"strings"
	"unicode"
)

var (
	errUnterminatedQuote   = errors.New("unterminated quoted string or identifier")
	errUnterminatedComment = errors.New("unterminated block comment")
)

// split reduces sql to one string of lowercase bare words per non-empty
// statement. Comments vanish, quoted strings and quoted identifiers become
// a single space, parentheses and '=' stand alone as their own words, and
// every other non-word character becomes a space.
func split(sql string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	rs := []rune(sql)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			cur.WriteByte(' ')

		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			end := indexFrom(rs, i+2, "*/")
			if end < 0 {
				return nil, errUnterminatedComment
			}
			i = end + 1
			cur.WriteByte(' ')

		case r == '\'' || r == '"' || r == '`':
			end, ok := closeQuote(rs, i, r)
			if !ok {
				return nil, errUnterminatedQuote
			}
			i = end
			cur.WriteByte(' ')

		case r == '[':
			end := indexFrom(rs, i+1, "]")
			if end < 0 {
				return nil, errUnterminatedQuote
			}
			i = end
			cur.WriteByte(' ')

		case r == ';':
			flush()

		case r == '(' || r == ')' || r == '=':
			cur.WriteByte(' ')
			cur.WriteRune(r)
			cur.WriteByte(' ')

		case isWordRune(r):
			cur.WriteRune(unicode.ToLower(r))

		default:
			cur.WriteByte(' ')
		}
	}
	flush()
	return stmts, nil
}

// closeQuote returns the index of the quote closing the one at start.
// A doubled quote character is an escaped literal quote.
func closeQuote(rs []rune, start int, q rune) (int, bool) {
	for j := start + 1; j < len(rs); j++ {
		if rs[j] != q {
			continue
		}
		if j+1 < len(rs) && rs[j+1] == q {
			j++
			continue
		}
		return j, true
	}
	return 0, false
}

// indexFrom returns the index of the first rune of needle in rs at or after
// from, or -1.
func indexFrom(rs []rune, from int, needle string) int {
	nr := []rune(needle)
outer:
	for j := from; j+len(nr) <= len(rs); j++ {
		for k := range nr {
			if rs[j+k] != nr[k] {
				continue outer
			}
		}
		return j
	}
	return -1
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
