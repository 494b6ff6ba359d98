package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/doctor"
	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/history"
	"github.com/rbright/livesub/internal/ipc"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

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

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorState(state string, colorize bool) string {
	if !colorize {
		return state
	}
	switch state {
	case "active", "running":
		return ansiGreen + state + ansiReset
	case "starting", "restarting", "stopping":
		return ansiYellow + state + ansiReset
	case "failed":
		return ansiRed + state + ansiReset
	default:
		return state
	}
}

func renderSessions(sessions []ipc.SourceStatus, colorize bool) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.SourceID,
			colorState(s.State, colorize),
			s.RunID,
			strconv.Itoa(s.RestartAttempts),
			formatActivity(s.LastActivityAt),
			s.Device,
		})
	}
	return renderTable(
		[]string{"Source", "State", "Run", "Restarts", "Last activity", "Device"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderSourceStatus(status ipc.SourceStatus, colorize bool) string {
	rows := [][]string{
		{"source", status.SourceID},
		{"state", colorState(status.State, colorize)},
		{"capturing", yesNo(status.Capturing)},
		{"credential", yesNo(status.HasCredential)},
		{"recognizer", yesNo(status.Supported)},
	}
	if status.RunID != "" {
		rows = append(rows, []string{"run", status.RunID})
	}
	if status.Device != "" {
		rows = append(rows, []string{"device", status.Device})
	}
	if status.RestartAttempts > 0 {
		rows = append(rows, []string{"restarts", strconv.Itoa(status.RestartAttempts)})
	}
	if status.Paused {
		rows = append(rows, []string{"paused", "yes"})
	}
	if !status.LastActivityAt.IsZero() {
		rows = append(rows, []string{"last activity", formatActivity(status.LastActivityAt)})
	}
	if status.Settings != nil {
		s := status.Settings
		rows = append(rows,
			[]string{"service", string(s.TranslationService)},
			[]string{"languages", s.SourceLanguage + " -> " + s.TargetLanguage},
		)
	}
	if t := status.Translation; t != nil {
		rows = append(rows, []string{"translations", fmt.Sprintf("%d (api %d, cache hits %d, cached %d)", t.Translations, t.APICalls, t.CacheHits, t.CacheEntries)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderSettings(s domain.Settings) string {
	rows := [][]string{
		{"translation_service", string(s.TranslationService)},
		{"source_language", s.SourceLanguage},
		{"target_language", s.TargetLanguage},
		{"sensitivity", strconv.FormatFloat(s.Sensitivity, 'f', -1, 64)},
		{"continuous", strconv.FormatBool(s.Continuous)},
		{"interim_results", strconv.FormatBool(s.InterimResults)},
		{"enhance", strconv.FormatBool(s.Enhance)},
		{"model", s.Model},
		{"api_key", s.APIKey},
	}
	return renderTable([]string{"Setting", "Value"}, rows, nil)
}

func renderDisplay(d domain.Display) string {
	rows := [][]string{
		{"font_family", d.FontFamily},
		{"font_size", strconv.Itoa(d.FontSize)},
		{"font_weight", d.FontWeight},
		{"font_color", d.FontColor},
		{"background_color", d.BackgroundColor},
		{"background_opacity", strconv.Itoa(d.BackgroundOpacity)},
		{"border_radius", strconv.Itoa(d.BorderRadius)},
		{"position", d.Position},
		{"horizontal_align", d.HorizontalAlign},
		{"margin_offset", strconv.Itoa(d.MarginOffset)},
		{"show_original", strconv.FormatBool(d.ShowOriginal)},
		{"auto_hide", strconv.FormatBool(d.AutoHide)},
		{"auto_hide_seconds", strconv.Itoa(d.AutoHideSeconds)},
		{"show_interim", strconv.FormatBool(d.ShowInterim)},
	}
	return renderTable([]string{"Display", "Value"}, rows, nil)
}

func renderDevices(devices []audio.Device) string {
	rows := make([][]string, 0, len(devices))
	for _, device := range devices {
		mark := ""
		if device.Default {
			mark = "*"
		}
		rows = append(rows, []string{
			mark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
			yesNo(device.Monitor),
		})
	}
	return renderTable(
		[]string{"", "ID", "Description", "State", "Available", "Muted", "Monitor"},
		rows,
		nil,
	)
}

func renderHistory(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.EmittedAt.Local().Format(time.DateTime),
			string(entry.SourceID),
			strconv.Itoa(entry.Sequence),
			entry.Original,
			entry.Translated,
		})
	}
	return renderTable(
		[]string{"Time", "Source", "Seq", "Original", "Translated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderDoctor(report doctor.Report, colorize bool) string {
	lines := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		label, color := "OK", ansiGreen
		if !check.Pass {
			label, color = "FAIL", ansiRed
		}
		line := fmt.Sprintf("[%s] %s: %s", label, check.Name, check.Message)
		if colorize {
			line = color + line + ansiReset
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatActivity(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format(time.TimeOnly)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
