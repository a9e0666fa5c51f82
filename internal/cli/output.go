package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Output форматирует вывод CLI: таблицы или JSON.
type Output struct {
	jsonMode bool
	w        io.Writer // данные
	errW     io.Writer // сообщения
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными writers.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print выводит таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит таблицу через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Run выводит run с деревом результатов шагов (или JSON).
func (o *Output) Run(run *domain.Run) {
	if o.jsonMode {
		o.JSON(run)
		return
	}

	fmt.Fprintf(o.w, "run %s  %s  %s  %s\n", run.ID, run.WorkflowName, run.State, formatDuration(run.Duration()))
	if run.Error != "" {
		fmt.Fprintf(o.w, "error: %s\n", run.Error)
	}
	writeOutcomes(o.w, run.Steps, "")
}

// writeOutcomes рисует дерево результатов.
func writeOutcomes(w io.Writer, outcomes []*domain.StepOutcome, indent string) {
	for i, oc := range outcomes {
		branch, next := "├─ ", "│  "
		if i == len(outcomes)-1 {
			branch, next = "└─ ", "   "
		}

		line := fmt.Sprintf("%s%s%s [%s] %s %s", indent, branch, oc.StepID, oc.Kind, oc.State, formatDuration(oc.Duration()))
		if oc.Error != "" {
			line += ": " + oc.Error
		}
		fmt.Fprintln(w, line)

		writeOutcomes(w, oc.Children, indent+next)
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// Success выводит сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит ошибку в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// formatTime форматирует время для таблиц.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
