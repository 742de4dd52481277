package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/detector"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

const justificationWidth = 72

func renderAnalysis(a *biz.Analysis, colorize bool) string {
	rows := [][]string{
		{"File", a.Name},
		{"Kind", a.Kind.String()},
		{"Type", a.FileType},
		{"Size", formatSize(a.FileSize)},
		{"Classification", classificationLabel(a.Classification, colorize)},
		{"Score", formatScore(a.Score)},
		{"Justification", a.Justification},
	}
	if a.Video != nil {
		rows = append(rows,
			[]string{"Visual score", formatScore(a.Video.Visual.Score)},
			[]string{"Sampled frames", fmt.Sprintf("%d", a.Video.Visual.FrameCount())},
			[]string{"Audio score", audioScore(a.Video)},
		)
	}
	out := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})

	if a.Video != nil && len(a.Video.Visual.Frames) > 0 {
		frames := make([][]string, len(a.Video.Visual.Frames))
		for i, f := range a.Video.Visual.Frames {
			frames[i] = []string{
				fmt.Sprintf("%d", f.Index),
				f.Timestamp.String(),
				formatScore(f.Score),
				f.Justification,
			}
		}
		out += "\n" + renderTable([]string{"Frame", "At", "Score", "Justification"}, frames,
			[]columnAlignment{alignRight, alignRight, alignRight, alignLeft})
	}
	return out
}

// renderHistory lists recorded analyses, newest first.
func renderHistory(items []*biz.Analysis, total int64, colorize bool) string {
	if len(items) == 0 {
		return "No analyses recorded."
	}
	rows := make([][]string, len(items))
	for i, a := range items {
		rows[i] = []string{
			a.ID,
			a.Kind.String(),
			a.Name,
			formatSize(a.FileSize),
			formatScore(a.Score),
			classificationLabel(a.Classification, colorize),
			humanize.Time(a.CreatedAt),
		}
	}
	out := renderTable(
		[]string{"ID", "Kind", "File", "Size", "Score", "Classification", "Analyzed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
	if int64(len(items)) < total {
		out += fmt.Sprintf("\n%d of %d analyses shown", len(items), total)
	}
	return out
}

func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    justificationWidth,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func classificationLabel(c detector.Classification, colorize bool) string {
	label := string(c)
	if !colorize {
		return label
	}
	switch c {
	case detector.ClassificationDeepfake:
		return ansiRed + label + ansiReset
	case detector.ClassificationUncertain:
		return ansiYellow + label + ansiReset
	case detector.ClassificationAuthentic:
		return ansiGreen + label + ansiReset
	default:
		return label
	}
}

func audioScore(v *detector.VideoVerdict) string {
	if !v.HasAudio {
		return "no audio"
	}
	return formatScore(v.Audio.Score)
}

func formatScore(s float64) string {
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", s), "0"), ".0")
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
