// Package sqltext holds the small amount of SQL text handling the client needs:
// splitting a command into statements, classifying them, and finding
// placeholders, table names and id predicates.
//
// None of this is a SQL parser. The functions are heuristics over raw text and
// do not understand comments, escaped quotes inside literals, CTEs or joins.
// Table names may be schema-qualified. Id predicates are only looked for in the
// statement's own WHERE clause, never inside a subquery.
package sqltext

import (
	"strings"
)

// Split breaks sql into statements on ';' characters outside single or double
// quotes. Statements are trimmed and empty ones are dropped; a trailing
// statement without a terminating ';' is kept.
//
// Quote tracking is a single "current quote" that toggles on the same
// character, so a doubled quote inside a literal simply closes and reopens it.
func Split(sql string) []string {
	var stmts []string
	var b strings.Builder
	var quote rune

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			stmts = append(stmts, s)
		}
		b.Reset()
	}

	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			flush()
			continue
		}
		b.WriteRune(r)
	}
	flush()

	return stmts
}

// Kind is the operation a statement performs, as far as response handling cares.
type Kind int

const (
	Other Kind = iota
	Insert
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	}
	return "OTHER"
}

// Policy selects how Classify looks at a statement.
type Policy int

const (
	// PrefixPolicy looks only at the first keyword of the left-trimmed statement.
	PrefixPolicy Policy = iota
	// ContainsPolicy matches the keyword anywhere in the text. The scalar path
	// uses it, so `SELECT 'UPDATE'` classifies differently under the two
	// policies. Callers must pick one explicitly.
	ContainsPolicy
)

// Classify returns the operation kind of stmt under the given policy.
func Classify(stmt string, policy Policy) Kind {
	upper := strings.ToUpper(stmt)
	if policy == PrefixPolicy {
		upper = strings.TrimLeft(upper, " \t\r\n")
		switch {
		case strings.HasPrefix(upper, "UPDATE"):
			return Update
		case strings.HasPrefix(upper, "INSERT"):
			return Insert
		case strings.HasPrefix(upper, "DELETE"):
			return Delete
		}
		return Other
	}

	switch {
	case strings.Contains(upper, "UPDATE"):
		return Update
	case strings.Contains(upper, "INSERT"):
		return Insert
	case strings.Contains(upper, "DELETE"):
		return Delete
	}
	return Other
}

// ClassifyEach classifies every statement with PrefixPolicy.
func ClassifyEach(stmts []string) []Kind {
	kinds := make([]Kind, len(stmts))
	for i, s := range stmts {
		kinds[i] = Classify(s, PrefixPolicy)
	}
	return kinds
}
