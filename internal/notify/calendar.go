package notify

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"taskplan/internal/plan"
)

const (
	// DefaultCalendarDays is how far ahead FormatCalendar looks by default.
	DefaultCalendarDays = 30
	barWidth            = 20
)

// FormatCalendar renders the workload view of a run: one load bar per day
// for the next days days (consumed against nominal hours), then every chain
// with its members in order and whether each date was fixed or scheduled.
func FormatCalendar(res *plan.Result, days int) string {
	if res == nil {
		return "taskplan: empty run"
	}
	if days <= 0 {
		days = DefaultCalendarDays
	}
	end := res.Today.AddDays(days)

	var b strings.Builder
	fmt.Fprintf(&b, "workload %s .. %s\n", res.Today, end.AddDays(-1))
	for _, l := range res.Load {
		if l.Date.Before(res.Today) || !l.Date.Before(end) {
			continue
		}
		b.WriteString(loadLine(l))
		b.WriteByte('\n')
	}

	chains := chainRows(res)
	if len(chains) > 0 {
		b.WriteString("\nchains\n")
		for _, c := range chains {
			fmt.Fprintf(&b, "  %s\n", c.key)
			for _, r := range c.rows {
				fmt.Fprintf(&b, "    %d. %s  %s %s\n", r.rec.Seq, r.when, label(r.rec), r.state)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func loadLine(l plan.DayLoad) string {
	day := l.Date.Weekday().String()[:3]
	if l.Available <= 0 {
		if l.Consumed > 0 {
			return fmt.Sprintf("%s %s %s %sh on a day off !", l.Date, day, bar(1), humanize.FtoaWithDigits(l.Consumed, 1))
		}
		return fmt.Sprintf("%s %s %s off", l.Date, day, bar(0))
	}
	ratio := l.Consumed / l.Available
	line := fmt.Sprintf("%s %s %s %s/%sh %3d%%", l.Date, day, bar(ratio),
		humanize.FtoaWithDigits(l.Consumed, 1), humanize.FtoaWithDigits(l.Available, 1), int(math.Round(ratio*100)))
	if l.Over() {
		line += " !"
	}
	return line
}

// bar draws ratio of barWidth cells, capped at a full bar.
func bar(ratio float64) string {
	n := int(math.Round(ratio * barWidth))
	n = max(0, min(n, barWidth))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", barWidth-n) + "]"
}

type chainRow struct {
	rec   plan.TaskRecord
	when  string
	state string
}

type chain struct {
	key  string
	rows []chainRow
}

// chainRows collects chain members from placements, kept records and
// deferrals, grouped by container in first-seen order and sorted by Seq.
func chainRows(res *plan.Result) []chain {
	var out []chain
	index := map[string]int{}
	add := func(key string, row chainRow) {
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, chain{key: key})
		}
		out[i].rows = append(out[i].rows, row)
	}

	for _, p := range res.Placements {
		if p.Group == "" {
			continue
		}
		state := "scheduled"
		if p.Degraded {
			state = "scheduled ! " + string(p.Reason)
		}
		add(p.Group, chainRow{rec: p.Record, when: p.Date.String(), state: state})
	}
	for _, r := range res.Kept {
		if r.IsChainMember() {
			add(r.GroupKey(), chainRow{rec: r, when: r.Due.String(), state: "fixed"})
		}
	}
	for _, d := range res.Deferred {
		if d.Record.IsChainMember() {
			add(d.Record.GroupKey(), chainRow{rec: d.Record, when: "----------", state: "deferred " + string(d.Reason)})
		}
	}

	for i := range out {
		rows := out[i].rows
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].rec.Seq < rows[b].rec.Seq })
	}
	return out
}
