package migrate

import "strings"

// StatementBreakpoint is the literal marker separating statements in the
// schema payload. It is the wire format emitted by the upstream schema tool
// and is kept verbatim so payloads remain portable.
const StatementBreakpoint = "--> statement-breakpoint"

// SplitStatements splits a schema payload into individual statements on the
// breakpoint marker, trimming whitespace and discarding empty segments.
// Marker text appearing inside single-quoted literals or `--` line comments
// does not split, so DDL carrying the marker in data or commentary stays intact.
func SplitStatements(schema string) []string {
	var (
		statements []string
		current    strings.Builder
		inQuote    bool
		inComment  bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	for i := 0; i < len(schema); i++ {
		ch := schema[i]

		if inComment {
			current.WriteByte(ch)
			if ch == '\n' {
				inComment = false
			}
			continue
		}

		if inQuote {
			current.WriteByte(ch)
			if ch == '\'' {
				// Doubled quote is an escaped quote, not a terminator.
				if i+1 < len(schema) && schema[i+1] == '\'' {
					current.WriteByte(schema[i+1])
					i++
					continue
				}
				inQuote = false
			}
			continue
		}

		if ch == '\'' {
			inQuote = true
			current.WriteByte(ch)
			continue
		}

		// The marker itself starts with "--", so it must be matched before
		// comment detection kicks in.
		if strings.HasPrefix(schema[i:], StatementBreakpoint) {
			flush()
			i += len(StatementBreakpoint) - 1
			continue
		}

		if ch == '-' && i+1 < len(schema) && schema[i+1] == '-' {
			inComment = true
			current.WriteByte(ch)
			continue
		}

		current.WriteByte(ch)
	}

	flush()
	return statements
}
