package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"

	units "github.com/docker/go-units"
)

func filterStatuses(statuses []domain.ProcessStatus, name string) []domain.ProcessStatus {
	if name == domain.TargetAll {
		return statuses
	}
	for _, status := range statuses {
		if status.Name == name {
			return []domain.ProcessStatus{status}
		}
	}
	return nil
}

func printStatusTable(w io.Writer, statuses []domain.ProcessStatus) {
	header := []string{"NAME", "STATE", "PID", "UPTIME", "RESTARTS", "MEMORY", "LAST EXIT"}
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		state := string(status.State)
		if status.PermanentlyFailed {
			state += " (failed)"
		} else if !status.NextRestartAt.IsZero() {
			state += " (restart in " + units.HumanDuration(time.Until(status.NextRestartAt)) + ")"
		}

		pid, uptime, memory := "-", "-", "-"
		if status.PID > 0 {
			pid = strconv.Itoa(status.PID)
			uptime = units.HumanDuration(status.Uptime)
		}
		if status.MemoryRSS > 0 {
			memory = units.BytesSize(float64(status.MemoryRSS))
		}

		lastExit := status.LastExit
		if status.FailureReason != "" {
			lastExit = status.FailureReason
		}

		rows = append(rows, []string{status.Name, state, pid, uptime, strconv.Itoa(status.Restarts), memory, lastExit})
	}
	printTable(w, header, rows)
}

func printResultTable(w io.Writer, results []domain.Result) {
	header := []string{"NAME", "RESULT", "STATE", "ERROR"}
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		outcome := "ok"
		if !result.Success {
			outcome = "failed"
		}
		rows = append(rows, []string{result.Name, outcome, string(result.State), result.Error})
	}
	printTable(w, header, rows)
}

func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, title := range header {
		widths[i] = len(title)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = maxInt(widths[i], len(cell))
		}
	}

	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width)
	}
	sep := "+-" + strings.Join(parts, "-+-") + "-+\n"

	printRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = pad(cell, widths[i])
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(padded, " | "))
	}

	fmt.Fprint(w, sep)
	printRow(header)
	fmt.Fprint(w, sep)
	for _, row := range rows {
		printRow(row)
	}
	fmt.Fprint(w, sep)
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
