// Package sqlguard performs a structural screen of generated SQL before it
// reaches the store. It complements the model-backed validator with checks
// that do not depend on wording.
package sqlguard

import "fmt"

type Kind string

const (
	KindEmpty Kind = "empty"
	KindRead  Kind = "read"
	KindWrite Kind = "write"
	KindDDL   Kind = "ddl"
	KindOther Kind = "other"
)

var readKeywords = map[string]struct{}{
	"select": {}, "with": {}, "values": {}, "explain": {}, "show": {}, "describe": {}, "table": {},
	"from": {},
}

var writeKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "replace": {}, "merge": {}, "upsert": {},
}

var ddlKeywords = map[string]struct{}{
	"create": {}, "drop": {}, "alter": {}, "truncate": {}, "attach": {}, "detach": {},
	"pragma": {}, "grant": {}, "revoke": {}, "vacuum": {}, "copy": {}, "install": {},
	"load": {}, "export": {}, "import": {}, "set": {}, "reindex": {}, "analyze": {},
}

// Report summarizes the statements found in a SQL text.
type Report struct {
	Statements int
	// Kind and Keyword describe the first statement.
	Kind      Kind
	Keyword   string
	Returning bool
}

// word is a keyword with its parenthesis depth. opensGroup marks a word that
// directly follows an opening parenthesis.
type word struct {
	kw         string
	depth      int
	opensGroup bool
}

// Inspect classifies sqlText without executing it. Comments, string literals
// and quoted identifiers are ignored when looking for keywords.
func Inspect(sqlText string) Report {
	report := Report{Kind: KindEmpty}
	var (
		inStatement bool
		words       []word
		depth       int
		afterOpen   bool
	)
	finish := func() {
		if !inStatement {
			return
		}
		report.Statements++
		if report.Statements == 1 {
			report.Kind, report.Keyword, report.Returning = classify(words)
		}
		inStatement = false
		words = words[:0]
		depth = 0
		afterOpen = false
	}

	for _, token := range Tokenize(sqlText) {
		switch token.Kind {
		case TokenSpace, TokenComment:
			continue
		case TokenSemicolon:
			finish()
			continue
		}
		inStatement = true
		if kw := keyword(token); kw != "" {
			words = append(words, word{kw: kw, depth: depth, opensGroup: afterOpen})
		}
		afterOpen = false
		if token.Kind == TokenPunct {
			switch token.Text {
			case "(":
				depth++
				afterOpen = true
			case ")":
				depth = max(depth-1, 0)
			}
		}
	}
	finish()
	return report
}

// mainStatementKeywords can start the statement that follows a WITH clause.
var mainStatementKeywords = map[string]struct{}{
	"select": {}, "values": {}, "table": {}, "from": {},
	"insert": {}, "update": {}, "delete": {}, "merge": {},
}

func classify(words []word) (Kind, string, bool) {
	if len(words) == 0 {
		return KindOther, "", false
	}
	lead := words[0].kw
	returning := false
	for _, w := range words[1:] {
		if w.depth == 0 && w.kw == "returning" {
			returning = true
		}
	}

	if _, ok := ddlKeywords[lead]; ok {
		return KindDDL, lead, false
	}
	if _, ok := writeKeywords[lead]; ok {
		return KindWrite, lead, returning
	}
	if _, ok := readKeywords[lead]; !ok {
		return KindOther, lead, false
	}
	if lead != "with" {
		return KindRead, lead, false
	}

	for _, w := range words[1:] {
		if w.depth != 0 {
			continue
		}
		if _, ok := mainStatementKeywords[w.kw]; !ok {
			continue
		}
		if _, ok := writeKeywords[w.kw]; ok {
			return KindWrite, lead, returning
		}
		break
	}
	// Data-modifying CTEs write even when the main statement only reads.
	for _, w := range words[1:] {
		if w.depth == 0 || !w.opensGroup {
			continue
		}
		switch w.kw {
		case "insert", "update", "delete", "merge":
			return KindWrite, lead, true
		}
	}
	return KindRead, lead, false
}

// ReturnsRows reports whether executing sqlText yields a result set.
func ReturnsRows(sqlText string) bool {
	report := Inspect(sqlText)
	return report.Kind == KindRead || (report.Kind == KindWrite && report.Returning)
}

// Violation describes why a statement was refused.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string {
	return v.Reason
}

type Guard struct {
	AllowMutations bool
}

// Check returns a *Violation when sqlText is not a single permitted
// statement.
func (g Guard) Check(sqlText string) error {
	report := Inspect(sqlText)
	switch {
	case report.Statements == 0:
		return &Violation{Reason: "empty SQL statement"}
	case report.Statements > 1:
		return &Violation{Reason: fmt.Sprintf("multiple statements are not allowed (found %d)", report.Statements)}
	}

	switch report.Kind {
	case KindRead:
		return nil
	case KindWrite:
		if g.AllowMutations {
			return nil
		}
		return &Violation{Reason: fmt.Sprintf("data modification (%s) is disabled", report.Keyword)}
	case KindDDL:
		return &Violation{Reason: fmt.Sprintf("schema or administrative statement (%s) is not allowed", report.Keyword)}
	default:
		return &Violation{Reason: fmt.Sprintf("unsupported statement type %q", report.Keyword)}
	}
}
