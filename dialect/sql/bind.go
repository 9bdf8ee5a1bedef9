package sql

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/syssam/aggrepo/dialect"
)

// Bind rewrites the @name placeholders of query into the bind form of d and
// returns the driver arguments in placeholder order. Every placeholder must
// have a matching argument; unused arguments are ignored. Quoted literals
// and @@ system variables are left untouched.
func Bind(d dialect.Dialect, query string, args []NamedArg) (string, []any, error) {
	values := make(map[string]any, len(args))
	for _, a := range args {
		values[a.Name] = a.Value
	}
	var (
		b     strings.Builder
		argv  []any
		index map[string]int
	)
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			j := closingQuote(query, i)
			b.WriteString(query[i:j])
			i = j - 1
		case c == '@' && i+1 < len(query) && query[i+1] == '@':
			b.WriteString("@@")
			i++
		case c == '@':
			j := i + 1 + identLen(query[i+1:])
			if j == i+1 {
				b.WriteByte(c)
				continue
			}
			name := query[i+1 : j]
			v, ok := values[name]
			if !ok {
				return "", nil, fmt.Errorf("dialect/sql: bind: missing argument for parameter %q", name)
			}
			switch d.BindStyle() {
			case dialect.BindQuestion:
				b.WriteByte('?')
				argv = append(argv, v)
			case dialect.BindDollar:
				if index == nil {
					index = make(map[string]int)
				}
				n, ok := index[name]
				if !ok {
					argv = append(argv, v)
					n = len(argv)
					index[name] = n
				}
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
			default:
				if index == nil {
					index = make(map[string]int)
				}
				if _, ok := index[name]; !ok {
					argv = append(argv, sql.Named(name, v))
					index[name] = len(argv)
				}
				b.WriteString(query[i:j])
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), argv, nil
}

// Split splits a statement batch at ';' separators outside quoted literals.
// Blank statements are dropped and the separators are not retained.
func Split(batch string) []string {
	var (
		stmts []string
		start int
	)
	for i := 0; i < len(batch); i++ {
		switch batch[i] {
		case '\'', '"':
			i = closingQuote(batch, i) - 1
		case ';':
			if s := strings.TrimSpace(batch[start:i]); s != "" {
				stmts = append(stmts, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(batch[start:]); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// closingQuote returns the index just past the literal opened at s[i].
// Doubled quotes are escapes. An unterminated literal runs to the end.
func closingQuote(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// identLen returns the byte length of the parameter name at the start of s.
// Names are Go identifiers, so letters and digits outside ASCII count.
func identLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	return n
}
