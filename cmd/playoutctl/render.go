package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderStat formats a stat reply as a headline plus a field table.
func renderStat(reply map[string]any, colorize bool) string {
	fps := number(reply["fps"])

	state, color := "IDLE", ""
	switch {
	case reply["current_item"] != nil && truthy(reply["paused"]):
		state, color = "PAUSED", ansiYellow
	case reply["current_item"] != nil:
		state, color = "ON AIR", ansiGreen
	case truthy(reply["current_live"]):
		state, color = "LIVE", ansiRed
	}
	headline := fmt.Sprintf("Channel %s  [%s]", str(reply["id_channel"]), state)
	if colorize && color != "" {
		headline = color + headline + ansiReset
	}

	rows := [][]string{
		{"Current", itemLabel(reply["current_item"], reply["current_title"])},
		{"Cued", itemLabel(reply["cued_item"], reply["cued_title"])},
		{"Position", timecode(number(reply["position"]), fps) + " / " + timecode(number(reply["duration"]), fps)},
		{"Cue state", str(reply["cue_state"])},
		{"Loop", yesNo(truthy(reply["loop"]))},
		{"Live", fmt.Sprintf("current %s, cued %s", yesNo(truthy(reply["current_live"])), yesNo(truthy(reply["cued_live"])))},
	}
	if cueing := str(reply["cueing"]); cueing != "" {
		rows = append(rows, []string{"Cueing", cueing})
	}
	if ev := str(reply["id_event"]); ev != "" {
		rows = append(rows, []string{"Event", ev})
	}
	return headline + "\n" + renderTable([]string{"Field", "Value"}, rows)
}

// renderPlugins lists plugin names, kinds and their actions.
func renderPlugins(reply map[string]any) string {
	plugins, _ := reply["plugins"].([]any)
	if len(plugins) == 0 {
		return "No plugins accept commands on this channel"
	}
	rows := make([][]string, 0, len(plugins))
	for _, p := range plugins {
		m, _ := p.(map[string]any)
		rows = append(rows, []string{str(m["name"]), str(m["title"]), str(m["kind"]), slotNames(m["slots"])})
	}
	return renderTable([]string{"Name", "Title", "Kind", "Slots"}, rows)
}

// renderAsRun lists as-run records.
func renderAsRun(reply map[string]any) string {
	records, _ := reply["records"].([]any)
	if len(records) == 0 {
		return "No as-run records"
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		m, _ := r.(map[string]any)
		stop := str(m["stop"])
		if stop == "" {
			stop = "on air"
		}
		rows = append(rows, []string{str(m["id"]), str(m["id_channel"]), str(m["id_item"]), str(m["start"]), stop})
	}
	out := renderTable([]string{"ID", "Channel", "Item", "Start", "Stop"}, rows, 1, 2, 3)
	return out + fmt.Sprintf("\n%d of %s records", len(records), str(reply["total"]))
}

func slotNames(v any) string {
	slots, _ := v.([]any)
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		if m, ok := s.(map[string]any); ok {
			names = append(names, str(m["name"]))
		}
	}
	return strings.Join(names, ", ")
}

func itemLabel(id, title any) string {
	if id == nil {
		return "-"
	}
	if t := str(title); t != "" {
		return fmt.Sprintf("%s (%s)", t, str(id))
	}
	return str(id)
}

// timecode renders seconds as HH:MM:SS:FF at the given frame rate.
func timecode(seconds, fps float64) string {
	if fps <= 0 {
		fps = 25
	}
	if seconds < 0 {
		seconds = 0
	}
	frames := int64(math.Round(seconds * fps))
	perSecond := int64(math.Round(fps))
	ff := frames % perSecond
	total := frames / perSecond
	return fmt.Sprintf("%02d:%02d:%02d:%02d", total/3600, total/60%60, total%60, ff)
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func truthy(v any) bool {
	b, _ := v.(bool)
	return b
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
