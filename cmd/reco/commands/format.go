package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a boxed command header with key-value lines
func PrintHeader(title string, kv [][2]string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	if len(kv) > 0 {
		PrintSeparator()
		for _, p := range kv {
			fmt.Printf("  %-10s: %s\n", p[0], p[1])
		}
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printJSON writes v as indented JSON to stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pct(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *p)
}

func dateOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(contracts.DateLayout)
}

func reasonOrDash(r *contracts.ReasonCode) string {
	if r == nil {
		return "-"
	}
	return string(*r)
}

// snapshotSummary shows the conventional keys, or the raw payload when none parse
func snapshotSummary(s contracts.ScoreSnapshot) string {
	f := s.Fields()
	var parts []string
	if f.Score != nil {
		parts = append(parts, fmt.Sprintf("score=%g", *f.Score))
	}
	if f.Rank != nil {
		parts = append(parts, fmt.Sprintf("rank=%d", *f.Rank))
	}
	if f.Signal != nil && *f.Signal != "" {
		parts = append(parts, "signal="+*f.Signal)
	}
	if f.Regime != nil && *f.Regime != "" {
		parts = append(parts, "regime="+*f.Regime)
	}
	if len(parts) == 0 {
		return string(s.Raw())
	}
	if len(f.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("+%d key(s)", len(f.Extra)))
	}
	return strings.Join(parts, " ")
}

// printSummary renders one evaluation cycle
func printSummary(s *lifecycle.Summary) {
	title := fmt.Sprintf("Lifecycle Evaluation (%s)", s.Mode)
	if s.DryRun {
		title += " [DRY RUN]"
	}
	PrintHeader(title, [][2]string{
		{"As of", s.AsOf},
		{"Duration", s.Duration.String()},
	})

	PrintKeyValue("Evaluated", fmt.Sprintf("%d", s.Evaluated), 12)
	PrintKeyValue("Transitioned", fmt.Sprintf("%d", s.Transitioned), 12)
	PrintKeyValue("Archived", fmt.Sprintf("%d", s.Archived), 12)
	PrintKeyValue("Skipped", fmt.Sprintf("%d", s.Skipped), 12)
	PrintKeyValue("Errors", fmt.Sprintf("%d", s.ErrorCount), 12)

	var changed []lifecycle.RecordResult
	for _, r := range s.Results {
		if len(r.Transitions) > 0 {
			changed = append(changed, r)
		}
	}
	if len(changed) > 0 {
		fmt.Println()
		widths := []int{8, 10, 28, 22, 10, 10}
		PrintTableHeader([]string{"TICKER", "STRATEGY", "TRANSITION", "REASON", "DATE", "RETURN"}, widths)
		for _, r := range changed {
			for _, t := range r.Transitions {
				PrintTableRow([]string{
					r.Ticker,
					r.Strategy,
					fmt.Sprintf("%s → %s", t.From, t.To),
					string(t.Reason),
					t.EffectiveDate,
					pct(t.ReturnPct),
				}, widths)
			}
		}
	}

	if len(s.Duplicates) > 0 {
		fmt.Println()
		PrintWarning(fmt.Sprintf("Duplicate open recommendations: %s", strings.Join(s.Duplicates, ", ")))
	}
	if len(s.Errors) > 0 {
		fmt.Println()
		PrintWarning(fmt.Sprintf("%d error(s), showing %d:", s.ErrorCount, len(s.Errors)))
		for _, e := range s.Errors {
			fmt.Printf("   • %s %s: %s\n", e.Ticker, e.RecommendationID, e.Error)
		}
	}
	fmt.Println()
}

// printBackfill renders a multi-day replay
func printBackfill(b *lifecycle.BackfillSummary) {
	title := "Lifecycle Backfill (REPLAY)"
	if b.DryRun {
		title += " [DRY RUN]"
	}
	PrintHeader(title, [][2]string{
		{"Period", fmt.Sprintf("%s ~ %s", b.From, b.To)},
		{"Days", fmt.Sprintf("%d", len(b.Days))},
		{"Duration", b.Duration.String()},
	})

	widths := []int{10, 9, 12, 8, 7, 6}
	PrintTableHeader([]string{"AS OF", "EVALUATED", "TRANSITIONED", "ARCHIVED", "SKIPPED", "ERRORS"}, widths)
	for _, d := range b.Days {
		if d.Transitioned == 0 && d.Archived == 0 && d.ErrorCount == 0 && !verbose {
			continue
		}
		PrintTableRow([]string{
			d.AsOf,
			fmt.Sprintf("%d", d.Evaluated),
			fmt.Sprintf("%d", d.Transitioned),
			fmt.Sprintf("%d", d.Archived),
			fmt.Sprintf("%d", d.Skipped),
			fmt.Sprintf("%d", d.ErrorCount),
		}, widths)
	}
	PrintSeparator()
	PrintTableRow([]string{
		"TOTAL",
		fmt.Sprintf("%d", b.Evaluated),
		fmt.Sprintf("%d", b.Transitioned),
		fmt.Sprintf("%d", b.Archived),
		fmt.Sprintf("%d", b.Skipped),
		fmt.Sprintf("%d", b.ErrorCount),
	}, widths)
	fmt.Println()
}

// printIntake renders one feed drain
func printIntake(s *lifecycle.IntakeSummary) {
	PrintHeader("Candidate Intake", nil)
	PrintKeyValue("Pulled", fmt.Sprintf("%d", s.Pulled), 9)
	PrintKeyValue("Created", fmt.Sprintf("%d", s.Created), 9)
	PrintKeyValue("Rejected", fmt.Sprintf("%d", s.Rejected), 9)
	PrintKeyValue("Deferred", fmt.Sprintf("%d", s.Deferred), 9)
	PrintKeyValue("Invalid", fmt.Sprintf("%d", s.Invalid), 9)
	PrintKeyValue("Failed", fmt.Sprintf("%d", s.Failed), 9)

	if len(s.ByReason) > 0 {
		reasons := make([]string, 0, len(s.ByReason))
		for r := range s.ByReason {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)

		fmt.Println()
		fmt.Println("   By reason:")
		for _, r := range reasons {
			fmt.Printf("   • %-20s %d\n", r, s.ByReason[contracts.ReasonCode(r)])
		}
	}
	for _, e := range s.Errors {
		PrintError(e)
	}
	fmt.Println()
}

// printRecommendation renders one record with its audit trail
func printRecommendation(rec *contracts.Recommendation, events []*contracts.StateEvent) {
	PrintHeader(fmt.Sprintf("Recommendation %s", rec.ID), [][2]string{
		{"Ticker", rec.Ticker},
		{"Strategy", rec.Strategy},
		{"Status", string(rec.Status)},
	})

	PrintKeyValue("Anchor", fmt.Sprintf("%s @ %.2f", rec.AnchorDate.Format(contracts.DateLayout), rec.AnchorClose), 14)
	if rec.BrokenAt != nil {
		PrintKeyValue("Broken", fmt.Sprintf("%s %s %s",
			rec.BrokenAt.Format(contracts.DateLayout), reasonOrDash(rec.BrokenReason), pct(rec.BrokenReturnPct)), 14)
	}
	if rec.ArchivedAt != nil {
		price := "-"
		if rec.ArchivePrice != nil {
			price = fmt.Sprintf("%.2f", *rec.ArchivePrice)
		}
		PrintKeyValue("Archived", fmt.Sprintf("%s %s %s @ %s",
			rec.ArchivedAt.Format(contracts.DateLayout), reasonOrDash(rec.ArchiveReason), pct(rec.ArchiveReturnPct), price), 14)
	}
	if !rec.ScoreSnapshot.IsZero() {
		PrintKeyValue("Snapshot", snapshotSummary(rec.ScoreSnapshot), 14)
	}
	PrintKeyValue("Status changed", rec.StatusChangedAt.Format("2006-01-02 15:04:05"), 14)

	if len(events) == 0 {
		fmt.Println()
		return
	}

	fmt.Println()
	widths := []int{19, 28, 22, 10, 10}
	PrintTableHeader([]string{"OCCURRED", "TRANSITION", "REASON", "EFFECTIVE", "RETURN"}, widths)
	for _, ev := range events {
		from := "∅"
		if ev.FromStatus != nil {
			from = string(*ev.FromStatus)
		}
		PrintTableRow([]string{
			ev.OccurredAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s → %s", from, ev.ToStatus),
			string(ev.Reason),
			ev.Metadata.EffectiveDate,
			pct(ev.Metadata.ReturnPct),
		}, widths)
	}
	fmt.Println()
}

// printRecommendationList renders a status listing
func printRecommendationList(recs []*contracts.Recommendation) {
	widths := []int{36, 8, 10, 12, 10, 10, 10}
	PrintTableHeader([]string{"ID", "TICKER", "STRATEGY", "STATUS", "ANCHOR", "CLOSED", "RETURN"}, widths)
	for _, r := range recs {
		ret := r.ArchiveReturnPct
		if ret == nil {
			ret = r.BrokenReturnPct
		}
		PrintTableRow([]string{
			r.ID,
			r.Ticker,
			r.Strategy,
			string(r.Status),
			r.AnchorDate.Format(contracts.DateLayout),
			dateOrDash(r.ClosedAt()),
			pct(ret),
		}, widths)
	}
	fmt.Printf("\n%d recommendation(s)\n", len(recs))
}
