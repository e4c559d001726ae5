package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	llmr "github.com/aws-samples/llmresilience"
)

// TotalRow is the label of the row summing a group table.
const TotalRow = "TOTAL"

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func heading(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
}

// Seconds formats a duration the way result tables print latency.
func Seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// WriteSummary prints the overall statistics of a report.
func WriteSummary(w io.Writer, title string, r llmr.Report, elapsed time.Duration) error {
	heading(w, title)
	s := r.Overall
	tw := newTab(w)
	fmt.Fprintf(tw, "Total requests:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Successful:\t%d (%s)\n", s.Success, llmr.FormatPct(s.SuccessPct))
	fmt.Fprintf(tw, "Rate limited:\t%d (%s)\n", s.RateLimited, llmr.FormatPct(llmr.Percent(s.RateLimited, s.Total)))
	fmt.Fprintf(tw, "Failed:\t%d (%s)\n", s.Failed, llmr.FormatPct(llmr.Percent(s.Failed, s.Total)))
	if s.Timed > 0 {
		fmt.Fprintf(tw, "Latency (%s):\tavg %s  p50 %s  p95 %s  min %s  max %s\n",
			r.Policy, Seconds(s.AvgLatency), Seconds(s.P50Latency), Seconds(s.P95Latency),
			Seconds(s.MinLatency), Seconds(s.MaxLatency))
	}
	if elapsed > 0 {
		fmt.Fprintf(tw, "Wall clock:\t%s\n", Seconds(elapsed))
	}
	return tw.Flush()
}

// WriteGroups prints one row per group, in the given order, followed by a
// TOTAL row when total is set. display maps a group name to its printed
// name; nil prints names unchanged.
func WriteGroups(w io.Writer, title string, r llmr.Report, names []string, display func(string) string, total bool) error {
	heading(w, title)
	tw := newTab(w)
	fmt.Fprintln(tw, "Group\tRequests\tSuccess\tRate limited\tFailed\tSuccess %\tAvg latency")
	row := func(name string, s llmr.Summary) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			name, s.Total, s.Success, s.RateLimited, s.Failed, llmr.FormatPct(s.SuccessPct), Seconds(s.AvgLatency))
	}
	for _, g := range names {
		label := g
		if display != nil {
			label = display(g)
		}
		row(label, r.Groups[g])
	}
	if total {
		row(TotalRow, r.Overall)
	}
	return tw.Flush()
}

// WriteDistribution prints label shares, e.g. regions or served models.
func WriteDistribution(w io.Writer, title, column string, shares []llmr.LabelShare) error {
	heading(w, title)
	if len(shares) == 0 {
		fmt.Fprintln(w, "No attributed calls.")
		return nil
	}
	tw := newTab(w)
	fmt.Fprintf(tw, "%s\tCount\tShare\n", column)
	for _, s := range shares {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Label, s.Count, llmr.FormatPct(s.Pct))
	}
	return tw.Flush()
}

// WriteGateway prints the gateway deployments serving an alias and the
// router's routing strategy, if known.
func WriteGateway(w io.Writer, alias, strategy string, rows []llmr.DeploymentRow) error {
	heading(w, "Gateway configuration: "+alias)
	if strategy != "" {
		fmt.Fprintf(w, "Routing strategy: %s\n", strategy)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No deployments configured.")
		return nil
	}
	tw := newTab(w)
	fmt.Fprintln(tw, "Model\tRPM\tRole")
	for _, r := range rows {
		rpm := "-"
		if r.RPM > 0 {
			rpm = fmt.Sprint(r.RPM)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Model, rpm, r.Role)
	}
	return tw.Flush()
}

// WriteTotals prints cumulative statistics across loop iterations.
func WriteTotals(w io.Writer, t llmr.Totals, flags ...string) error {
	heading(w, fmt.Sprintf("Cumulative statistics (%d runs)", t.Runs))
	tw := newTab(w)
	fmt.Fprintf(tw, "Total requests:\t%d\n", t.Overall.Total())
	fmt.Fprintf(tw, "Successful:\t%d (%s)\n", t.Overall.Success, llmr.FormatPct(t.Overall.SuccessPct()))
	fmt.Fprintf(tw, "Rate limited:\t%d\n", t.Overall.RateLimited)
	fmt.Fprintf(tw, "Failed:\t%d\n", t.Overall.Failed)
	for _, g := range sorted(t.Groups) {
		c := t.Groups[g]
		fmt.Fprintf(tw, "  %s:\t%d/%d (%s)\n", g, c.Success, c.Total(), llmr.FormatPct(c.SuccessPct()))
	}
	for _, s := range t.LabelShares() {
		fmt.Fprintf(tw, "  %s:\t%d (%s)\n", s.Label, s.Count, llmr.FormatPct(s.Pct))
	}
	for _, f := range flags {
		fmt.Fprintf(tw, "%s:\t%d/%d runs (%s)\n", f, t.Flags[f], t.Runs, llmr.FormatPct(t.FlagPct(f)))
	}
	return tw.Flush()
}

func sorted(m map[string]llmr.Counts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
