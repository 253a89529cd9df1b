package sqltext

import (
	"regexp"
	"strconv"
	"strings"
)

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// scan copies stmt, replacing every @name placeholder outside quoted spans
// with the text fn returns for it.
func scan(stmt string, fn func(name string) string) string {
	var b strings.Builder
	var quote byte

	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '@':
			j := i + 1
			for j < len(stmt) && isIdentRune(rune(stmt[j])) {
				j++
			}
			if j > i+1 {
				b.WriteString(fn(stmt[i+1 : j]))
				i = j - 1
				continue
			}
		}
		b.WriteByte(c)
	}

	return b.String()
}

// Placeholders returns the @name placeholders of stmt, without the @, in order
// of first appearance and deduplicated. Placeholders inside quotes are ignored.
func Placeholders(stmt string) []string {
	_, names := Rewrite(stmt)
	return names
}

// Rewrite replaces every @name placeholder with ?k, where k is the 1-based
// position of name in the returned list. A placeholder used twice maps to the
// same ?k.
func Rewrite(stmt string) (string, []string) {
	var names []string
	index := map[string]int{}

	out := scan(stmt, func(name string) string {
		key := strings.ToLower(name)
		pos, ok := index[key]
		if !ok {
			names = append(names, name)
			pos = len(names)
			index[key] = pos
		}
		return "?" + strconv.Itoa(pos)
	})

	return out, names
}

var tableKeywordRe = regexp.MustCompile(`(?is)^\s*(?:UPDATE(?:\s+OR\s+\w+)?|DELETE\s+FROM|(?:INSERT(?:\s+OR\s+\w+)?|REPLACE)\s+INTO)\s+`)

func skipSpace(s string, i int) int {
	for i < len(s) && strings.IndexByte(" \t\r\n", s[i]) >= 0 {
		i++
	}
	return i
}

// readIdent reads one identifier starting at s[i]: "quoted" (with "" as an
// escaped quote), `quoted`, [bracketed] or bare. It returns the unquoted name
// and the offset just past it.
func readIdent(s string, i int) (string, int, bool) {
	if i >= len(s) {
		return "", i, false
	}

	switch s[i] {
	case '"':
		var b strings.Builder
		for j := i + 1; j < len(s); j++ {
			if s[j] != '"' {
				b.WriteByte(s[j])
				continue
			}
			if j+1 < len(s) && s[j+1] == '"' {
				b.WriteByte('"')
				j++
				continue
			}
			if b.Len() == 0 {
				return "", i, false
			}
			return b.String(), j + 1, true
		}
		return "", i, false
	case '`', '[':
		closer := byte('`')
		if s[i] == '[' {
			closer = ']'
		}
		j := strings.IndexByte(s[i+1:], closer)
		if j <= 0 {
			return "", i, false
		}
		return s[i+1 : i+1+j], i + j + 2, true
	}

	j := i
	for j < len(s) && (isIdentRune(rune(s[j])) || s[j] == '$' || s[j] >= 0x80) {
		j++
	}
	if j == i {
		return "", i, false
	}
	return s[i:j], j, true
}

// TableIdent extracts the target table of an UPDATE, DELETE FROM or INSERT INTO
// statement as identifier parts: ["Blogs"], or ["main", "Blogs"] for a
// schema-qualified name. Quoted parts are unquoted.
func TableIdent(stmt string) ([]string, bool) {
	loc := tableKeywordRe.FindStringIndex(stmt)
	if loc == nil {
		return nil, false
	}

	name, i, ok := readIdent(stmt, loc[1])
	if !ok {
		return nil, false
	}
	parts := []string{name}

	if j := skipSpace(stmt, i); j < len(stmt) && stmt[j] == '.' {
		name, i, ok = readIdent(stmt, skipSpace(stmt, j+1))
		if !ok {
			return nil, false
		}
		parts = append(parts, name)
	}

	if j := skipSpace(stmt, i); j < len(stmt) && stmt[j] == '.' {
		return nil, false
	}
	return parts, true
}

// TableName is TableIdent with the parts joined by '.'.
func TableName(stmt string) (string, bool) {
	parts, ok := TableIdent(stmt)
	if !ok {
		return "", false
	}
	return strings.Join(parts, "."), true
}

// Predicate is a `column = @param` comparison found in a WHERE clause.
type Predicate struct {
	Column string
	Param  string
}

var (
	whereRe     = regexp.MustCompile(`(?i)\bWHERE\b`)
	predicateRe = regexp.MustCompile("(?:\"([^\"]+)\"|`([^`]+)`|\\[([^\\]]+)\\]|\\b([A-Za-z_]\\w*))\\s*=\\s*@(\\w+)")
)

// topLevel marks the bytes of s that sit outside quotes and parentheses.
func topLevel(s string) []bool {
	out := make([]bool, len(s))
	depth := 0
	var quote byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		out[i] = quote == 0 && depth == 0
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		}
	}

	return out
}

// Predicates lists the `column = @param` comparisons of the statement's own
// WHERE clause: the last WHERE outside parentheses. Comparisons nested in
// subqueries are skipped.
func Predicates(stmt string) []Predicate {
	top := topLevel(stmt)

	clause := -1
	for _, loc := range whereRe.FindAllStringIndex(stmt, -1) {
		if top[loc[0]] {
			clause = loc[1]
		}
	}
	if clause < 0 {
		return nil
	}

	var preds []Predicate
	for _, sm := range predicateRe.FindAllStringSubmatchIndex(stmt[clause:], -1) {
		if !top[clause+sm[0]] {
			continue
		}
		col := ""
		for g := 1; g <= 4; g++ {
			if sm[2*g] >= 0 {
				col = stmt[clause+sm[2*g] : clause+sm[2*g+1]]
				break
			}
		}
		preds = append(preds, Predicate{Column: col, Param: stmt[clause+sm[10] : clause+sm[11]]})
	}
	return preds
}

// IDPredicate finds the parameter compared against the Id column, as in
// `WHERE "Id" = @p3`. The column name match is case-insensitive.
func IDPredicate(stmt string) (string, bool) {
	for _, p := range Predicates(stmt) {
		if strings.EqualFold(p.Column, "id") {
			return p.Param, true
		}
	}
	return "", false
}

// NumberPositional rewrites ? placeholders outside quotes to @p0, @p1, ... so
// they bind like positional arguments. ?NNN becomes @p{NNN-1} and a bare ?
// takes the number after the largest seen so far. It reports false, with stmt
// unchanged, when there is no ? placeholder.
func NumberPositional(stmt string) (string, bool) {
	var b strings.Builder
	var quote byte
	largest := 0
	found := false

	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '?':
			j := i + 1
			for j < len(stmt) && stmt[j] >= '0' && stmt[j] <= '9' {
				j++
			}
			n := largest + 1
			if j > i+1 {
				n, _ = strconv.Atoi(stmt[i+1 : j])
				if n < 1 {
					b.WriteString(stmt[i:j])
					i = j - 1
					continue
				}
			}
			if n > largest {
				largest = n
			}
			found = true
			b.WriteString("@p" + strconv.Itoa(n-1))
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}

	if !found {
		return stmt, false
	}
	return b.String(), true
}

// HasAggregateMarker reports whether text looks like one of the admin count
// queries (`COUNT(*)`, `sqlite_master`) that the scalar path answers with 0
// when the response carries nothing.
func HasAggregateMarker(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "COUNT(*)") || strings.Contains(upper, "SQLITE_MASTER")
}

// QuoteIdent quotes name as a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes each part and joins them with '.'.
func QuoteQualified(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdent(p)
	}
	return strings.Join(quoted, ".")
}
