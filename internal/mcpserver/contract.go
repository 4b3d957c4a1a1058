package mcpserver

// QuerySyntax describes the query language accepted by search_notes.
const QuerySyntax = `# zest query syntax

A query is a boolean expression over indexed note fields.

## Fields

- ` + "`file:<path>`" + `     absolute note path, exact match
- ` + "`tag:<tag>`" + `       front matter tag, exact and case-sensitive
- ` + "`ref:<path>`" + `      absolute path a note links to, exact match
- ` + "`title:<words>`" + `   words of the first level-1 heading
- ` + "`content:<words>`" + ` words of the body text

Bare words search title and content. Quote values containing spaces:
` + "`tag:\"reading list\"`" + `. ` + "`*`" + ` matches every note.

## Operators

` + "`NOT`" + ` binds tightest, then ` + "`AND`" + ` (also implied between adjacent clauses),
then ` + "`OR`" + `. Use parentheses to group. Keywords are upper-case only.

    tag:go NOT tag:draft
    (tag:go OR tag:rust) title:concurrency

## Ranking

Results are ordered by score: title word matches count twice, content word
matches once. Ties are ordered by path.
`
