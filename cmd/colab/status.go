package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"

	"github.com/colabcli/colab/internal/colabapi"
)

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "emit JSON instead of a formatted table")
	copyOut := fs.Bool("copy", false, "copy the JSON payload to the clipboard")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab status: %v\n", err)
		return exitUsage
	}

	ctx := context.Background()
	ccu, err := a.client.GetCcuInfo(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab status: failed to fetch CCU info: %v\n", err)
		return exitTransport
	}
	user, err := a.client.GetUserInfo(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab status: failed to fetch user info: %v\n", err)
		return exitTransport
	}
	assignments, err := a.client.ListAssignments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab status: failed to fetch assignments: %v\n", err)
		return exitTransport
	}

	runtimes := make([]map[string]any, 0, len(assignments))
	for _, asn := range assignments {
		runtimes = append(runtimes, map[string]any{
			"label":        asn.Label,
			"accelerator":  asn.Accelerator,
			"memoryTotal":  colabapi.FormatMemory(asn.TotalMemoryMB),
			"memoryUsed":   colabapi.FormatMemory(asn.UsedMemoryMB),
			"memoryUsgPct": colabapi.CalculateMemoryUsage(asn.UsedMemoryMB, asn.TotalMemoryMB),
		})
	}

	payload := map[string]any{
		"email":          user.Email,
		"name":           user.Name,
		"balanceSeconds": ccu.BalanceSeconds,
		"planName":       ccu.PlanName,
		"runtimes":       runtimes,
	}
	data, _ := json.MarshalIndent(payload, "", "  ")

	if *copyOut {
		if err := clipboard.WriteAll(string(data)); err != nil {
			fmt.Fprintf(os.Stderr, "colab status: failed to copy to clipboard: %v\n", err)
		}
	}

	if *jsonOut {
		fmt.Println(string(data))
		return exitOK
	}

	label := lipgloss.NewStyle().Bold(true).Width(16)
	fmt.Printf("%s%s\n", label.Render("User"), fmt.Sprintf("%s <%s>", user.Name, user.Email))
	fmt.Printf("%s%s\n", label.Render("Plan"), ccu.PlanName)
	fmt.Printf("%s%ds\n", label.Render("CCU balance"), ccu.BalanceSeconds)
	for _, asn := range assignments {
		fmt.Printf("%s%s (%s) — %s/%s used (%d%%)\n", label.Render("Runtime"),
			asn.Label, asn.Accelerator,
			colabapi.FormatMemory(asn.UsedMemoryMB), colabapi.FormatMemory(asn.TotalMemoryMB),
			colabapi.CalculateMemoryUsage(asn.UsedMemoryMB, asn.TotalMemoryMB))
	}
	return exitOK
}
