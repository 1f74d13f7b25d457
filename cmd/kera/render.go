package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/yairfalse/kera/report"
)

func render(w io.Writer, rpt *report.InventoryReport, format string) error {
	switch format {
	case "json":
		return renderJSON(w, rpt)
	case "csv":
		return renderCSV(w, rpt)
	default:
		return renderTable(w, rpt)
	}
}

func renderJSON(w io.Writer, rpt *report.InventoryReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rpt)
}

// renderCSV writes one row per resource: kind, name, owning target, and the
// cloud region or cluster namespace.
func renderCSV(w io.Writer, rpt *report.InventoryReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Type", "Name", "Target", "Region / Namespace"}); err != nil {
		return err
	}
	for _, r := range rpt.Resources {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		if err := cw.Write([]string{r.Kind, name, r.Target, r.Region}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderTable(w io.Writer, rpt *report.InventoryReport) error {
	fmt.Fprintf(w, "Inventory Summary (run %s):\n", rpt.RunID)
	fmt.Fprintf(w, "   Work units: %d (complete: %d, partial: %d, failed: %d, timeout: %d, cancelled: %d)\n",
		rpt.Summary.Units, rpt.Summary.Complete, rpt.Summary.Partial,
		rpt.Summary.Failed, rpt.Summary.Timeout, rpt.Summary.Cancelled)
	fmt.Fprintf(w, "   Resources: %d", rpt.Summary.Resources)
	if rpt.Summary.DuplicatesRemovedN > 0 {
		fmt.Fprintf(w, " (%d duplicate observations removed)", rpt.Summary.DuplicatesRemovedN)
	}
	fmt.Fprintf(w, "\n")
	if rpt.Summary.MappingWarnings > 0 {
		fmt.Fprintf(w, "   Mapping warnings: %d (records dropped)\n", rpt.Summary.MappingWarnings)
	}
	fmt.Fprintf(w, "   Duration: %s\n\n", rpt.Duration.Round(time.Millisecond))

	if len(rpt.Summary.ResourcesByKind) > 0 {
		fmt.Fprintf(w, "Resources by kind:\n")
		kw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, kind := range sortedKeys(rpt.Summary.ResourcesByKind) {
			fmt.Fprintf(kw, "   %s\t%d\n", kind, rpt.Summary.ResourcesByKind[kind])
		}
		_ = kw.Flush()
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "Unit statuses:\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tKIND\tSTATUS\tRESOURCES\tPAGES\tDURATION\tREASON")
	fmt.Fprintln(tw, "------\t----\t------\t---------\t-----\t--------\t------")
	for _, status := range rpt.Statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			status.Target,
			status.Kind,
			status.Status,
			status.Resources,
			status.Pages,
			status.Duration.Round(time.Millisecond),
			truncate(status.Reason, 60),
		)
	}
	return tw.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate shortens s to maxLen characters, cutting on rune boundaries so
// multi-byte failure reasons stay valid UTF-8.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
