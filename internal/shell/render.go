package shell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/tidwall/pretty"

	"servisca-quickmatch/internal/stream"
)

const minWidth = 40

var tips = []string{
	"Open another terminal and follow a tasker topic to watch offers: topic tasker:tsk1",
	"Publish test events with: curl -XPOST '<backend>/publish?topic=task:<id>' -d '{...}'",
	"This is a minimal demo to validate the quick-match loop and realtime events.",
}

// Render lays the view out as a text block at most width cells wide.
// Each event panel shows its trailing maxRows lines
func Render(vm ViewModel, maxRows, width int) string {
	if width < minWidth {
		width = minWidth
	}
	var b bytes.Buffer

	b.WriteString(strings.Repeat("=", width) + "\n")
	writeLine(&b, width, "Servisca - Quick Match Demo   backend=%s", vm.Backend)
	b.WriteString(strings.Repeat("=", width) + "\n")

	b.WriteString(renderTable(
		[]string{"FIELD", "VALUE"},
		[][]string{
			{"Lat", vm.Form.Lat},
			{"Lng", vm.Form.Lng},
			{"Category", vm.Form.Category},
			{"User", vm.Form.UserID},
		},
		width,
	))
	writeLine(&b, width, "Quick match: %s", attemptLine(vm))
	if vm.Message != "" {
		writeLine(&b, width, "> %s", vm.Message)
	}
	b.WriteString(strings.Repeat("-", width) + "\n")

	if vm.Task.Topic != "" {
		renderPanel(&b, vm.Task, maxRows, width)
		b.WriteString(strings.Repeat("-", width) + "\n")
	}
	renderPanel(&b, vm.User, maxRows, width)
	b.WriteString(strings.Repeat("-", width) + "\n")
	renderPanel(&b, vm.Tester, maxRows, width)
	b.WriteString(strings.Repeat("-", width) + "\n")

	for _, tip := range tips {
		writeLine(&b, width, "* %s", tip)
	}
	writeLine(&b, width, "%s", helpText)
	return b.String()
}

func attemptLine(vm ViewModel) string {
	a := vm.Attempt
	switch {
	case a.Seq == 0:
		return "idle (type: match)"
	case a.Pending:
		return "searching..."
	case a.Err != nil:
		return "failed: " + a.Err.Error()
	default:
		return "task " + a.TaskID
	}
}

func renderPanel(b *bytes.Buffer, p PanelView, maxRows, width int) {
	topic := p.Topic
	if topic == "" {
		topic = "(none)"
	}
	writeLine(b, width, "[%s] topic=%s  %s  events=%d",
		p.Title, topic, statusLine(p.Status), len(p.Events))

	lines := strings.Split(strings.TrimRight(FormatEvents(p.Events), "\n"), "\n")
	if maxRows > 0 && len(lines) > maxRows {
		skipped := len(lines) - maxRows
		lines = lines[skipped:]
		writeLine(b, width, "  ... %d lines above", skipped)
	}
	for _, l := range lines {
		writeLine(b, width, "  %s", l)
	}
}

func statusLine(st stream.Status) string {
	switch {
	case st.State == stream.Closed && st.Err != nil:
		return "closed (" + st.Err.Error() + ")"
	case st.State == stream.Open:
		return "open since " + st.At.Format(time.TimeOnly)
	default:
		return st.State.String()
	}
}

// FormatEvents pretty-prints the log as one JSON array, two-space indent
func FormatEvents(events []json.RawMessage) string {
	if len(events) == 0 {
		return "[]\n"
	}
	var raw bytes.Buffer
	raw.WriteByte('[')
	for i, ev := range events {
		if i > 0 {
			raw.WriteByte(',')
		}
		raw.Write(ev)
	}
	raw.WriteByte(']')
	return string(pretty.PrettyOptions(raw.Bytes(), &pretty.Options{
		Width:  0,
		Indent: "  ",
	}))
}

func writeLine(b *bytes.Buffer, width int, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	b.WriteString(runewidth.Truncate(line, width, "…"))
	b.WriteByte('\n')
}

// renderTable builds a simple ASCII table using runewidth-aware padding.
// The last column is narrowed so no line exceeds width
func renderTable(headers []string, rows [][]string, width int) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i := range headers {
			if i < len(r) {
				widths[i] = max(widths[i], runewidth.StringWidth(r[i]))
			}
		}
	}

	total := 1
	for _, w := range widths {
		total += w + 3
	}
	if last := len(widths) - 1; total > width && last >= 0 {
		widths[last] = max(1, widths[last]-(total-width))
	}

	var b bytes.Buffer
	sep := func() {
		b.WriteString("+")
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteString("+")
		}
		b.WriteString("\n")
	}
	row := func(cells []string) {
		b.WriteString("|")
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" ")
			cell = runewidth.Truncate(cell, widths[i], "…")
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	sep()
	row(headers)
	sep()
	for _, r := range rows {
		row(r)
	}
	sep()
	return b.String()
}
