package service

import (
	"fmt"
	"regexp"
	"strings"

	"datapilot/internal/core"
)

// Validator rule names, reported in rejection messages so the audit trail
// records which policy rule fired.
const (
	RuleDangerousKeyword   = "dangerous-keyword"
	RuleCommentToken       = "comment-token"
	RuleStatementShape     = "statement-shape"
	RuleMultipleStatements = "multiple-statements"
)

// deniedKeywords are rejected wherever they appear as a word: data mutation,
// schema mutation, privilege and execution verbs.
var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE",
	"CREATE", "ALTER", "DROP", "TRUNCATE",
	"GRANT", "REVOKE",
	"EXEC", "EXECUTE", "PRAGMA",
}

// deniedSequences are rejected as plain substrings. Comments are banned
// outright because they can hide statement continuations.
var deniedSequences = []string{"--", "/*", "*/"}

var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(deniedKeywords))
	for _, kw := range deniedKeywords {
		patterns[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return patterns
}

// ValidateSQL is the single mandatory checkpoint between SQL generation and
// execution. It is pure and deterministic: no I/O, no state. On success it
// returns the normalized statement (trailing separator stripped); on failure
// a *core.SafetyError naming the violated rule.
//
// The policy is applied in order: denied tokens, then statement shape, then
// the stacked-statement guard. This is a heuristic gate, not a parser-grade
// guarantee.
func ValidateSQL(candidate string) (string, error) {
	trimmed := strings.TrimSpace(candidate)

	for _, kw := range deniedKeywords {
		if keywordPatterns[kw].MatchString(trimmed) {
			return "", &core.SafetyError{
				Rule:   RuleDangerousKeyword,
				Detail: fmt.Sprintf("dangerous operation detected: %s", kw),
			}
		}
	}

	for _, seq := range deniedSequences {
		if strings.Contains(trimmed, seq) {
			return "", &core.SafetyError{
				Rule:   RuleCommentToken,
				Detail: fmt.Sprintf("comment sequence not allowed: %s", seq),
			}
		}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", &core.SafetyError{
			Rule:   RuleStatementShape,
			Detail: "query must start with SELECT or WITH",
		}
	}

	// A single trailing separator is tolerated and stripped; anything else
	// that leaves a separator inside the statement is a stacked statement.
	normalized := strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	if strings.Contains(normalized, ";") {
		return "", &core.SafetyError{
			Rule:   RuleMultipleStatements,
			Detail: "multiple SQL statements not allowed",
		}
	}

	return normalized, nil
}
