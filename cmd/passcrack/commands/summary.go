package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/passcrack/pkg/crack"
	"github.com/Sumatoshi-tech/passcrack/pkg/progress"
	"github.com/Sumatoshi-tech/passcrack/pkg/safeconv"
)

const unknownValue = "-"

// renderSummary writes the end-of-run statistics as a table.
func renderSummary(w io.Writer, summary crack.Summary) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	total := unknownValue
	if summary.EstimatedTotal != nil {
		total = humanize.BigComma(summary.EstimatedTotal)
	}

	hits := unknownValue
	if summary.Found() {
		quoted := make([]string, 0, len(summary.Hits))
		for _, hit := range summary.Hits {
			quoted = append(quoted, fmt.Sprintf("%q", hit))
		}

		hits = strings.Join(quoted, ", ")
	}

	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"State", summary.State.String()},
		{"Probed", humanize.Comma(safeconv.Uint64ToInt64(summary.Probed))},
		{"Lines read", humanize.Comma(safeconv.Uint64ToInt64(summary.Lines))},
		{"Estimated total", total},
		{"Hits", hits},
		{"Failed checks", humanize.Comma(safeconv.Uint64ToInt64(summary.Failed))},
		{"Elapsed", progress.FormatDuration(summary.Elapsed)},
		{"Rate", rate(summary.Probed, summary.Elapsed)},
		{"Caller runs", humanize.Comma(safeconv.Uint64ToInt64(summary.Executor.CallerRuns))},
		{"Abandoned", humanize.Comma(safeconv.Uint64ToInt64(summary.Executor.Abandoned))},
	})

	tbl.Render()
}

func rate(probed uint64, elapsed time.Duration) string {
	keysPerSecond := progress.Sample{Probed: probed, Elapsed: elapsed}.Throughput() * float64(time.Second/time.Millisecond)
	if keysPerSecond <= 0 {
		return unknownValue
	}

	return humanize.Comma(safeconv.Float64ToInt64(keysPerSecond)) + " keys/s"
}
