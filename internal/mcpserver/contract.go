package mcpserver

import "strings"

const contractTemplate = `# Knowledge Block Format Contract

Knowledge lives in one Markdown file per category, named ` + "`" + `<category>.md` + "`" + `.
Tracked categories: {{categories}}.

## Structure

` + "```" + `markdown
# Decisions

## Session: 20250120-101500-1f0c9a2b (2025-01-20T10:15:00Z)
Chose SQLite for the block index; it needs no server. #storage

## Session: 20250121-090000-7ab41e02 (2025-01-21T09:00:00Z) [ttl:30d]
Revisit the index choice once [[20250120-101500-1f0c9a2b]] is in use.
` + "```" + `

## Rules

1. **Everything before the first header is preamble.** It is never versioned.
2. **Each block starts with a header line** ` + "`" + `## Session: <id> (<timestamp>)` + "`" + `,
   optionally followed by ` + "`" + ` [ttl:<duration>]` + "`" + `.
3. **Session ids** contain no whitespace, parentheses or brackets and are
   unique within a category. The same id may appear in several categories.
4. **Timestamps** are RFC 3339 in UTC.
5. **The body** runs until the next header. Leading and trailing blank lines
   and CRLF line endings do not count as changes.
6. **Wikilinks** ` + "`" + `[[session-id]]` + "`" + ` reference other blocks; ` + "`" + `#tags` + "`" + ` are indexed.
7. **Append, don't rewrite.** New knowledge goes into a new block via the
   ` + "`" + `append_block` + "`" + ` tool; history is recorded only when the user commits.
`

// BlockFormatContract describes the category file format that LLM
// consumers should follow when appending knowledge.
func BlockFormatContract(categories []string) string {
	return strings.Replace(contractTemplate, "{{categories}}", strings.Join(categories, ", "), 1)
}
