package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 20

type RenderOptions struct {
	Now time.Time
}

func renderReport(report application.ProgressReport, opts RenderOptions, s styles) string {
	settings := report.Settings
	lines := []string{
		s.title.Render("Ritual Progress"),
		s.header.Render(fmt.Sprintf(
			"accounts: %d  daily limit: %d  targets: %d bless / %d curse",
			report.Summary.TotalAccounts, settings.DailyLimitPerAccount, settings.TargetBless, settings.TargetCurse,
		)),
	}

	if len(report.Accounts) == 0 {
		lines = append(lines, s.empty.Render("No accounts tracked yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, account := range report.Accounts {
		lines = append(lines, s.section.Render(renderAccount(account, settings, opts, s)))
	}

	lines = append(lines, s.section.Render(renderSummary(report, s)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(report application.AccountReport, settings domain.Settings, opts RenderOptions, s styles) string {
	title := string(report.Name)
	if report.Account != nil {
		title = report.Account.Display()
	}
	if report.Complete(settings) {
		title += " " + s.success.Render("[done]")
	}
	if report.Block != nil {
		title += " " + s.warning.Render(fmt.Sprintf("[blocked: %s]", report.Block.Category))
	}

	progress := report.Progress
	parts := []string{
		s.account.Render(title),
		counterLine(domain.ActionBless, progress.BlessReceived, settings.TargetBless, s),
		counterLine(domain.ActionCurse, progress.CurseReceived, settings.TargetCurse, s),
		s.detail.Render(fmt.Sprintf(
			"given today: %d/%d (%d left)  last action: %s",
			progress.TotalGivenToday(), settings.DailyLimitPerAccount, report.RemainingToday, lastAction(progress),
		)),
	}
	if report.Block != nil && report.Block.Reason != "" {
		parts = append(parts, s.counterMeta.Render(fmt.Sprintf(
			"reason: %s (%s)", report.Block.Reason, formatSince(report.Block.BlockedAt, opts.Now),
		)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func counterLine(kind domain.ActionKind, received, target int, s styles) string {
	percent := 100.0
	if target > 0 {
		percent = float64(received) / float64(target) * 100
	}
	percent = clampPercent(percent)

	countStyle := lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.kind(kind).Render(fmt.Sprintf("%s:", kind)),
		" ",
		renderProgressBar(percent, barWidth, s),
		" ",
		countStyle.Render(fmt.Sprintf("%d/%d", received, target)),
	)
}

func lastAction(progress domain.AccountProgress) string {
	if progress.LastActionDate == "" {
		return "never"
	}
	if progress.LastActionTime == "" {
		return progress.LastActionDate
	}
	return progress.LastActionDate + " " + progress.LastActionTime
}

func renderSummary(report application.ProgressReport, s styles) string {
	summary := report.Summary
	today := report.Today

	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.title.Render("Summary"),
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.detail.Render("overall:"),
			" ",
			renderProgressBar(summary.Percent(), barWidth, s),
			" ",
			s.bar.text.Render(fmt.Sprintf("%d/%d (%.1f%%)", summary.TotalDone, summary.TotalTarget, summary.Percent())),
		),
		s.detail.Render(fmt.Sprintf("completed: %d  in progress: %d", summary.Completed, summary.InProgress)),
		s.bar.textFaint.Render(fmt.Sprintf(
			"today (%s): %d actions, %d bless, %d curse, %d accounts active",
			today.Date, len(today.Actions), today.TotalBless, today.TotalCurse, len(today.AccountsProcessed),
		)),
	)
}

func renderBlocked(records []domain.BlockRecord, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Blocked Accounts"),
		s.header.Render(fmt.Sprintf("blocked: %d", len(records))),
	}
	if len(records) == 0 {
		lines = append(lines, s.empty.Render("No blocked accounts."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, record := range records {
		name := string(record.Account)
		if record.ProfileKey != "" {
			name += " (" + record.ProfileKey + ")"
		}
		parts := []string{
			s.account.Render(name) + " " + s.warning.Render("["+string(record.Category)+"]"),
			s.detail.Render("reason: " + orDash(record.Reason)),
			s.counterMeta.Render("since: " + formatSince(record.BlockedAt, opts.Now)),
		}
		if record.Target != "" {
			parts = append(parts, s.counterMeta.Render("discord: "+record.Target))
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRun(result application.RunResult, items []domain.PlanItem, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Ritual Run"),
		s.header.Render(fmt.Sprintf("run: %s  planned: %d  sessions: %d", orDash(result.RunID), result.Planned, result.Sessions)),
	}

	if len(items) == 0 {
		lines = append(lines, s.empty.Render("Nothing to do: every target is met or no giver has capacity."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	plan := make([]string, 0, len(items))
	for _, item := range items {
		plan = append(plan, s.detail.Render(fmt.Sprintf(
			"%d/%d  %s %s -> %s", item.Index, item.Total, item.Action.Command(), item.Giver.Name, item.Receiver.Name,
		)))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, plan...)))

	if result.RunID != "" {
		outcome := s.success.Render(fmt.Sprintf("completed: %d", result.Completed))
		if result.Failed > 0 {
			outcome += "  " + s.warning.Render(fmt.Sprintf("failed: %d", result.Failed))
		} else {
			outcome += "  " + s.detail.Render("failed: 0")
		}
		outcome += "  " + s.detail.Render(fmt.Sprintf("skipped: %d  newly blocked: %d", result.Skipped, result.Blocked))
		lines = append(lines, s.section.Render(outcome))
	}

	if !opts.Now.IsZero() {
		lines = append(lines, s.bar.textFaint.Render("finished "+opts.Now.Format("15:04:05")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100.0))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	fillSegment := s.bar.fill.Render(strings.Repeat("=", filled))
	emptySegment := s.bar.empty.Render(strings.Repeat("-", empty))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.bar.bracket.Render("["),
		fillSegment,
		emptySegment,
		s.bar.bracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatSince(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	if now.IsZero() || at.After(now) {
		return at.Format("2006-01-02 15:04")
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed.Minutes()), "minute") + " ago"
	case elapsed < 24*time.Hour:
		return plural(int(elapsed.Hours()), "hour") + " ago"
	default:
		return plural(int(elapsed.Hours()/24), "day") + " ago (" + at.Format("02 Jan") + ")"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// greyscale ramp: 240 when nothing received, 255 at target
	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}
