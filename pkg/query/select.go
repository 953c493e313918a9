package query

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a MySQL identifier, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func QualifiedName(schema, table string) string {
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// SelectAll returns a statement reading every row of schema.table, ordered by
// orderBy when it is not empty. A paged statement ends in LIMIT ? OFFSET ?.
// The statement is parsed back and must read exactly schema.table.
func SelectAll(schema, table string, orderBy []string, paged bool) (string, error) {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(QualifiedName(schema, table))
	if len(orderBy) > 0 {
		quoted := make([]string, len(orderBy))
		for i, col := range orderBy {
			quoted[i] = QuoteIdentifier(col)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(quoted, ", "))
	}
	if paged {
		sb.WriteString(" LIMIT ? OFFSET ?")
	}
	stmt := sb.String()

	parsed, err := ParseSelect(stmt)
	if err != nil {
		return "", err
	}
	gotSchema, gotTable, err := TableOf(parsed)
	if err != nil {
		return "", fmt.Errorf("query: %s %w", stmt, err)
	}
	if gotSchema != schema || gotTable != table {
		return "", fmt.Errorf("query: %s reads %s.%s instead of %s.%s", stmt, gotSchema, gotTable, schema, table)
	}

	return stmt, nil
}

// CountRows returns the exact row count statement of schema.table.
func CountRows(schema, table string) string {
	return "SELECT COUNT(*) FROM " + QualifiedName(schema, table)
}
