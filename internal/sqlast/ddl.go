package sqlast

import "strings"

// ColumnDef declares one column of a created table.
type ColumnDef struct {
	Name string
	Type DataType
}

// RenderCreateTable renders CREATE TABLE IF NOT EXISTS for t. Aliases are
// ignored.
func RenderCreateTable(t Table, cols []ColumnDef, d Dialect) (string, error) {
	r := &renderer{d: d}
	r.b.WriteString("CREATE TABLE IF NOT EXISTS ")
	t.Alias = ""
	r.table(t)
	r.b.WriteString(" (\n")
	for i, c := range cols {
		r.b.WriteString("  ")
		r.b.WriteString(QuoteIdent(c.Name))
		r.b.WriteByte(' ')
		r.b.WriteString(d.TypeName(c.Type))
		if i < len(cols)-1 {
			r.b.WriteByte(',')
		}
		r.b.WriteByte('\n')
	}
	r.b.WriteString(")")
	if r.err != nil {
		return "", r.err
	}
	return r.b.String(), nil
}

// RenderCreateSchema renders CREATE SCHEMA IF NOT EXISTS. Dialects without
// schemas return an empty string.
func RenderCreateSchema(schema string, d Dialect) string {
	if schema == "" || d.Name == SQLite.Name {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdent(strings.TrimSpace(schema))
}
