// Package guard decides whether a SQL statement may run against the
// connected database.
//
// Classification is purely lexical: comments are dropped, quoted strings and
// identifiers are blanked, and the remaining keywords are matched against the
// active Policy. Nothing here touches a connection.
package guard

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlscope/internal/errs"
)

// Policy selects which statements the guard lets through.
type Policy int

const (
	// PolicySelectOnly allows only statements whose first keyword is SELECT.
	PolicySelectOnly Policy = iota

	// PolicyDenylist allows everything except statements mentioning DROP,
	// DELETE, TRUNCATE or ALTER. INSERT, UPDATE and CREATE pass.
	PolicyDenylist
)

func (p Policy) String() string {
	switch p {
	case PolicySelectOnly:
		return "select_only"
	case PolicyDenylist:
		return "denylist"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses the names String returns.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "select_only", "select-only", "selectonly":
		return PolicySelectOnly, nil
	case "denylist", "deny_list", "deny-list":
		return PolicyDenylist, nil
	}
	return 0, errs.Newf(errs.ErrKindInvalidInput, "unknown guard policy %q (want select_only or denylist)", s)
}

// Verdict is the guard's decision.
type Verdict int

const (
	Allowed Verdict = iota
	Rejected
)

func (v Verdict) String() string {
	if v == Allowed {
		return "allowed"
	}
	return "rejected"
}

// Kind says whether an allowed statement yields rows or only a row count.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

func (k Kind) String() string {
	if k == KindRead {
		return "read"
	}
	return "write"
}

// Classification is the outcome of Classify.
type Classification struct {
	Verdict Verdict
	Kind    Kind
	Keyword string // first keyword, lowercased
	Reason  string // set when Verdict is Rejected
}

func (c Classification) Allowed() bool { return c.Verdict == Allowed }

var denied = []string{"drop", "delete", "truncate", "alter"}

var readKeywords = map[string]bool{
	"select":  true,
	"values":  true,
	"explain": true,
}

// queryPragmas take a table or index argument and only report on it.
var queryPragmas = map[string]bool{
	"table_info":        true,
	"table_xinfo":       true,
	"table_list":        true,
	"index_list":        true,
	"index_info":        true,
	"index_xinfo":       true,
	"foreign_key_list":  true,
	"foreign_key_check": true,
	"integrity_check":   true,
	"quick_check":       true,
}

// Classify applies policy to sql.
func Classify(sql string, policy Policy) Classification {
	stmts, err := split(sql)
	if err != nil {
		return reject("", err.Error())
	}
	switch len(stmts) {
	case 0:
		return reject("", "empty statement")
	case 1:
	default:
		return reject("", "multiple statements are not allowed")
	}

	words := strings.Fields(stmts[0])
	keyword := words[0]
	kind := kindOf(keyword, words)

	switch policy {
	case PolicySelectOnly:
		if keyword != "select" {
			return reject(keyword, "only SELECT statements are allowed")
		}
	case PolicyDenylist:
		for _, w := range words {
			for _, d := range denied {
				if w == d {
					return reject(keyword, fmt.Sprintf("%s statements are not allowed", strings.ToUpper(d)))
				}
			}
		}
	default:
		return reject(keyword, fmt.Sprintf("unknown guard policy %d", int(policy)))
	}

	return Classification{Verdict: Allowed, Kind: kind, Keyword: keyword}
}

func kindOf(keyword string, words []string) Kind {
	switch {
	case readKeywords[keyword]:
		return KindRead
	case keyword == "with":
		return mainStatementKind(words[1:])
	case keyword == "pragma":
		return pragmaKind(words[1:])
	}
	return KindWrite
}

// mainStatementKind finds the statement that follows a WITH clause: the
// first statement keyword outside any parentheses.
func mainStatementKind(words []string) Kind {
	depth := 0
	for _, w := range words {
		switch w {
		case "(":
			depth++
		case ")":
			depth--
		case "select", "values":
			if depth == 0 {
				return KindRead
			}
		case "insert", "replace", "update", "delete":
			if depth == 0 {
				return KindWrite
			}
		}
	}
	return KindWrite
}

// pragmaKind treats a bare PRAGMA name, or a reporting pragma with an
// argument, as a read. Any assignment is a write.
func pragmaKind(words []string) Kind {
	name := ""
	for _, w := range words {
		switch w {
		case "=":
			return KindWrite
		case "(":
			if !queryPragmas[name] {
				return KindWrite
			}
			return KindRead
		}
		name = w
	}
	return KindRead
}

func reject(keyword, reason string) Classification {
	return Classification{Verdict: Rejected, Kind: KindWrite, Keyword: keyword, Reason: reason}
}

// Guard binds a Policy for repeated checks.
type Guard struct {
	policy Policy
}

func New(policy Policy) *Guard {
	return &Guard{policy: policy}
}

func (g *Guard) Policy() Policy { return g.policy }

func (g *Guard) Classify(sql string) Classification {
	return Classify(sql, g.policy)
}

// Check classifies sql and turns a rejection into a GuardRejected error.
func (g *Guard) Check(sql string) (Classification, error) {
	c := g.Classify(sql)
	if !c.Allowed() {
		return c, errs.New(errs.ErrKindGuardRejected, c.Reason)
	}
	return c, nil
}
