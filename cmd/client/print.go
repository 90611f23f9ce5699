package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/reduce"
)

func printResult(w io.Writer, t *datatable.Table, withMeta bool) error {
	rows, err := t.Rows()
	if err != nil {
		return err
	}
	cols := t.Schema().Cols

	cells := make([][]string, len(rows))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c.Name)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i, v := range row {
			s := formatValue(v)
			cells[r][i] = s
			widths[i] = max(widths[i], len(s))
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, padRight(values[i], widths[i]))
		}
		fmt.Fprintln(w)
	}

	if len(cols) > 0 {
		hdr := make([]string, len(cols))
		for i, c := range cols {
			hdr[i] = c.Name
		}
		printRow(hdr)
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, "-+-")
			}
			fmt.Fprint(w, strings.Repeat("-", widths[i]))
		}
		fmt.Fprintln(w)
		for _, row := range cells {
			printRow(row)
		}
	}
	fmt.Fprintf(w, "(%d rows)\n", t.NumRows())

	meta := t.Metadata()
	exc := reduce.Exceptions(meta)
	for _, node := range slices.Sorted(maps.Keys(exc)) {
		fmt.Fprintf(w, "node %s failed: %s\n", node, exc[node])
	}
	if withMeta {
		for _, k := range meta.Keys() {
			fmt.Fprintf(w, "  %s = %s\n", k, meta[k])
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return fmt.Sprintf("0x%x", x)
	case datatable.AvgPair:
		return fmt.Sprintf("avg=%g (n=%d)", x.Avg(), x.Count)
	}
	return fmt.Sprintf("%v", v)
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
