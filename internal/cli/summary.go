package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/refcheck/pkg/closure"
)

// printSummary writes the final verdict and, when something failed, a table
// of every unresolved dependency.
func printSummary(w io.Writer, th theme, res *closure.Result) {
	if res.OK {
		printSuccess(w, th, "DONE. Every dependency resolved.")
		return
	}
	n := len(res.Failures)
	noun := "dependencies"
	if n == 1 {
		noun = "dependency"
	}
	printError(w, th, "DONE with errors. %d %s could not be resolved.", n, noun)
	if n == 0 {
		return
	}

	rows := make([][]string, n)
	for i, f := range res.Failures {
		rows[i] = []string{filepath.Base(f.Artifact), f.Dependency.String(), f.Reason()}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.border).
		Headers("Artifact", "Dependency", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return th.header.Padding(0, 1)
			}
			if col == 2 {
				return th.errText.Padding(0, 1)
			}
			return th.value.Padding(0, 1)
		})
	fmt.Fprintln(w, t.Render())
}
