package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/colabcli/colab/internal/history"
)

func cmdHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := configFlag(fs)
	status := fs.String("status", "", "filter by status: OK|ERROR|ABORT")
	mode := fs.String("mode", "", "filter by mode: kernel|terminal")
	category := fs.String("category", "", "filter by error category")
	since := fs.String("since", "", "filter entries at/after this RFC3339 timestamp")
	until := fs.String("until", "", "filter entries at/before this RFC3339 timestamp")
	limit := fs.Int("limit", history.DefaultQueryLimit(), "maximum number of entries (0 returns none)")
	jsonOut := fs.Bool("json", false, "emit JSON instead of a formatted table")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab history: %v\n", err)
		return exitUsage
	}

	filters := history.Filters{
		Status:   history.Status(strings.ToUpper(*status)),
		Mode:     history.Mode(strings.ToLower(*mode)),
		Category: history.Category(strings.ToUpper(*category)),
		Limit:    *limit,
	}
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "colab history: invalid --since: %v\n", err)
			return exitUsage
		}
		filters.Since = t
	}
	if *until != "" {
		t, err := time.Parse(time.RFC3339, *until)
		if err != nil {
			fmt.Fprintf(os.Stderr, "colab history: invalid --until: %v\n", err)
			return exitUsage
		}
		filters.Until = t
	}

	entries, err := a.manager.History().Query(filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab history: query failed: %v\n", err)
		return exitTransport
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return exitOK
	}

	printHistoryTable(entries)
	return exitOK
}

func printHistoryTable(entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Println("no history entries match the given filters")
		return
	}

	header := lipgloss.NewStyle().Bold(true).Underline(true)
	statusStyle := func(s history.Status) lipgloss.Style {
		switch s {
		case history.StatusOK:
			return lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		case history.StatusAbort:
			return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
		default:
			return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		}
	}

	fmt.Printf("%-27s %-7s %-8s %-6s %s\n",
		header.Render("timestamp"), header.Render("status"), header.Render("mode"),
		header.Render("code"), header.Render("command"))
	for _, e := range entries {
		command := e.Command
		if len(command) > 60 {
			command = command[:57] + "..."
		}
		fmt.Printf("%-27s %-7s %-8s %-6d %s\n",
			e.Timestamp, statusStyle(e.Status).Render(string(e.Status)), e.Mode, e.ErrorCode, command)
	}
}
