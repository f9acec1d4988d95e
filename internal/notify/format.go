package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"taskplan/internal/plan"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// FormatSummary renders a run result as plain text. At most maxLines
// placements are listed; maxLines <= 0 lists none.
func FormatSummary(runID string, res *plan.Result, maxLines int) string {
	if res == nil {
		return "taskplan: empty run"
	}
	s := res.Summary()

	var b strings.Builder
	fmt.Fprintf(&b, "taskplan run %s (%s)\n", shortID(runID), res.Today)
	fmt.Fprintf(&b, "placed %d (sequence %d, priority %d), kept %d\n", s.Placed, s.Sequential, s.Priority, s.Kept)
	if s.Degraded > 0 || s.Deferred > 0 || s.Skipped > 0 {
		fmt.Fprintf(&b, "degraded %d, deferred %d, skipped groups %d\n", s.Degraded, s.Deferred, s.Skipped)
	}
	if over := overloaded(res.Load); len(over) > 0 {
		fmt.Fprintf(&b, "over capacity: %s\n", strings.Join(over, ", "))
	}

	placements := res.ByDate()
	if maxLines > 0 && len(placements) > 0 {
		b.WriteString("\n")
		for i, p := range placements {
			if i == maxLines {
				fmt.Fprintf(&b, "... and %d more\n", len(placements)-maxLines)
				break
			}
			mark := ""
			if p.Degraded {
				mark = " !"
			}
			fmt.Fprintf(&b, "%s %sh %s%s\n", p.Date, humanize.FtoaWithDigits(p.Record.Duration, 2), label(p.Record), mark)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func label(r plan.TaskRecord) string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	return r.ID
}

func overloaded(loads []plan.DayLoad) []string {
	var out []string
	for _, l := range loads {
		if l.Over() {
			out = append(out, fmt.Sprintf("%s (%s/%sh)", l.Date,
				humanize.FtoaWithDigits(l.Consumed, 1), humanize.FtoaWithDigits(l.Usable, 1)))
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// splitMessage cuts text into chunks of at most limit bytes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var out []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
