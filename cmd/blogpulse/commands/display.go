package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/itgyani/blogpulse/pulse/schedule"
	"github.com/itgyani/blogpulse/sym"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

// relative renders t as "in 3h" or "2d ago" from now
func relative(t, now time.Time) string {
	d := t.Sub(now)
	suffix := ""
	prefix := "in "
	if d < 0 {
		d, prefix, suffix = -d, "", " ago"
	}
	var s string
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		s = fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		s = fmt.Sprintf("%dh", int(d.Hours()))
	default:
		s = fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return prefix + s + suffix
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func seriesStatusText(status schedule.SeriesStatus) string {
	switch status {
	case schedule.SeriesActive:
		return pterm.FgGreen.Sprint(status)
	case schedule.SeriesPaused:
		return pterm.FgYellow.Sprint(status)
	default:
		return pterm.FgGray.Sprint(status)
	}
}

func jobStatusText(status schedule.JobStatus) string {
	switch status {
	case schedule.JobSucceeded:
		return pterm.FgGreen.Sprint(status)
	case schedule.JobFailed:
		return pterm.FgRed.Sprint(status)
	case schedule.JobGenerating:
		return pterm.FgCyan.Sprint(status)
	default:
		return string(status)
	}
}

func healthText(status schedule.HealthStatus) string {
	label := sym.ForStatus(string(status)) + " " + string(status)
	switch status {
	case schedule.HealthGood:
		return pterm.FgGreen.Sprint(label)
	case schedule.HealthWarning:
		return pterm.FgYellow.Sprint(label)
	default:
		return pterm.FgRed.Sprint(label)
	}
}

func printSeries(s *schedule.Series) {
	pterm.DefaultSection.Println(s.Topic)
	pairs := [][2]string{
		{"ID", s.ID},
		{"Status", seriesStatusText(s.Status)},
		{"Frequency", s.Frequency.String()},
		{"Next due", formatTime(s.NextDueAt) + " (" + relative(s.NextDueAt, time.Now()) + ")"},
		{"Category", orDash(s.Category)},
		{"Keywords", orDash(strings.Join(s.Keywords, ", "))},
		{"Tone / audience", orDash(s.Tone) + " / " + orDash(s.Audience)},
		{"Auto publish", fmt.Sprint(s.AutoPublish)},
		{"Images", imagesText(s)},
		{"Generated / failed", fmt.Sprintf("%d / %d", s.GeneratedCount, s.FailedCount)},
		{"Last run", formatTimePtr(s.LastRunAt)},
	}
	if s.LastError != "" {
		pairs = append(pairs, [2]string{"Last error", pterm.FgRed.Sprint(truncate(s.LastError, 100))})
	}
	for _, p := range pairs {
		pterm.Printf("  %-20s %s\n", p[0], p[1])
	}
}

func imagesText(s *schedule.Series) string {
	if !s.GenerateImages {
		return "no"
	}
	return fmt.Sprintf("%d per post", s.ImageCount)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
