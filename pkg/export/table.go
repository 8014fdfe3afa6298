package export

// Table is the renderer-independent shape of a report: ordered columns plus
// positional rows. Rows shorter than Columns render empty trailing cells.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

func (t Table) cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
