package plagiarism

import (
	"strconv"
	"strings"
	"unicode"
)

// sqlKeywords is the vocabulary preserved verbatim during SQL identifier
// canonicalization. Anything outside it is rewritten to a positional
// placeholder so renamed tables or columns do not hide copying.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "and": {}, "or": {}, "not": {},
	"insert": {}, "into": {}, "values": {}, "update": {}, "set": {}, "delete": {},
	"create": {}, "table": {}, "drop": {}, "alter": {}, "add": {}, "column": {},
	"join": {}, "inner": {}, "left": {}, "right": {}, "outer": {}, "on": {},
	"group": {}, "by": {}, "having": {}, "order": {}, "asc": {}, "desc": {},
	"limit": {}, "offset": {}, "distinct": {}, "as": {}, "in": {}, "between": {},
	"like": {}, "is": {}, "null": {}, "primary": {}, "key": {}, "foreign": {},
	"references": {}, "unique": {}, "index": {}, "union": {}, "all": {},
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "exists": {}, "with": {},
}

// Normalize turns source code into a deterministic token stream: comments
// stripped, whitespace collapsed, tokens lowercased, and for SQL every
// non-keyword identifier replaced with a positional placeholder.
func Normalize(language, source string) []string {
	stripped := stripComments(language, source)
	tokens := tokenize(stripped)

	if language == "sql" {
		return canonicalizeSQL(tokens)
	}

	return tokens
}

func stripComments(language, source string) string {
	switch language {
	case "python":
		return stripLineComments(source, "#")
	case "sql":
		return stripBlockComments(stripLineComments(source, "--"))
	default:
		return stripBlockComments(stripLineComments(source, "//"))
	}
}

func stripLineComments(source, marker string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, marker); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func stripBlockComments(source string) string {
	var out strings.Builder
	for {
		start := strings.Index(source, "/*")
		if start < 0 {
			out.WriteString(source)
			break
		}
		out.WriteString(source[:start])
		end := strings.Index(source[start+2:], "*/")
		if end < 0 {
			break
		}
		source = source[start+2+end+2:]
	}
	return out.String()
}

func tokenize(source string) []string {
	tokens := make([]string, 0, 64)
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	for _, r := range source {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()

	return tokens
}

// canonicalizeSQL maps each distinct non-keyword identifier to id0, id1, ...
// in order of first appearance. The mapping is per-submission, so two
// structurally identical queries normalize to identical streams.
func canonicalizeSQL(tokens []string) []string {
	aliases := make(map[string]string)
	out := make([]string, len(tokens))

	for i, token := range tokens {
		if _, keyword := sqlKeywords[token]; keyword || !isIdentifier(token) {
			out[i] = token
			continue
		}

		alias, ok := aliases[token]
		if !ok {
			alias = "id" + strconv.Itoa(len(aliases))
			aliases[token] = alias
		}
		out[i] = alias
	}

	return out
}

func isIdentifier(token string) bool {
	for i, r := range token {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return token != ""
}
