package merge

// Key identifies a sheet of a source file.
type Key struct {
	File  string `json:"file"`
	Sheet string `json:"sheet"`
}

// Selection maps sheets to the chosen zero-based column indices, in selection order.
type Selection map[Key][]int

// Total returns the number of selected columns across all sheets.
func (sel Selection) Total() int {
	n := 0
	for _, cols := range sel {
		n += len(cols)
	}
	return n
}

// Get returns a copy of the columns selected for (file, sheet).
func (sel Selection) Get(file, sheet string) []int {
	cols := sel[Key{File: file, Sheet: sheet}]
	if len(cols) == 0 {
		return nil
	}
	return append([]int(nil), cols...)
}

// dedupe keeps the first occurrence of every index.
func dedupe(cols []int) []int {
	seen := make(map[int]bool, len(cols))
	out := make([]int, 0, len(cols))
	for _, c := range cols {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
