package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/colabcli/colab/internal/assignment"
	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/execution"
	"github.com/colabcli/colab/internal/templates"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := configFlag(fs)
	notebook := fs.String("notebook", "", "existing Drive notebook path to attach the session to")
	newName := fs.String("new", "", "create a new notebook with this name and attach to it")
	variant := fs.String("variant", "", "requested runtime variant: gpu|tpu|default")
	timeout := fs.Duration("timeout", 30*time.Second, "execution timeout")
	jsonOut := fs.Bool("json", false, "emit a single JSON result object instead of formatted text")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "colab run: missing <code> argument")
		return exitUsage
	}
	code := strings.Join(fs.Args(), " ")

	a, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab run: %v\n", err)
		return exitUsage
	}

	ui := newRunProgress(!*jsonOut && term.IsTerminal(int(os.Stdout.Fd())))
	ui.start()
	defer ui.stop()

	ctx := context.Background()

	ui.phase("resolving notebook path")
	path, err := resolveNotebookPath(ctx, a, *notebook, *newName)
	if err != nil {
		ui.stop()
		fmt.Fprintf(os.Stderr, "colab run: %v\n", err)
		return exitTransport
	}

	ui.phase("assigning runtime")
	assignOpts := assignment.Options{Variant: parseVariant(*variant)}
	runtimeAssignment, err := a.manager.Assign(ctx, assignOpts)
	if err != nil {
		ui.stop()
		fmt.Fprintf(os.Stderr, "colab run: assign failed: %v\n", err)
		return exitTransport
	}

	ui.phase("connecting kernel session")
	if _, err := a.manager.Connect(ctx, runtimeAssignment, path); err != nil {
		ui.stop()
		fmt.Fprintf(os.Stderr, "colab run: connect failed: %v\n", err)
		return exitTransport
	}

	ui.phase("executing")
	execCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	result, err := a.manager.Execute(execCtx, runtimeAssignment.Endpoint, code, execution.Options{
		TimeoutMs: int(timeout.Milliseconds()),
	})
	ui.stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab run: execute failed: %v\n", err)
		return exitTransport
	}

	if *jsonOut {
		data, _ := json.Marshal(result)
		fmt.Println(string(data))
	} else {
		printResult(result)
	}

	switch result.Status {
	case execution.StatusOK:
		return exitOK
	default:
		return exitExecution
	}
}

func resolveNotebookPath(ctx context.Context, a *app, notebookFlag, newName string) (string, error) {
	switch {
	case newName != "":
		content, err := templates.NewNotebook()
		if err != nil {
			return "", fmt.Errorf("failed to build new notebook: %w", err)
		}
		if _, err := a.drive.Create(ctx, newName, content); err != nil {
			return "", fmt.Errorf("failed to create notebook %q on Drive: %w", newName, err)
		}
		return newName, nil
	case notebookFlag != "":
		file, found, err := a.drive.FindByName(ctx, notebookFlag)
		if err != nil {
			return "", fmt.Errorf("failed to look up notebook %q on Drive: %w", notebookFlag, err)
		}
		if !found {
			return "", fmt.Errorf("notebook %q not found on Drive", notebookFlag)
		}
		return file.Name, nil
	default:
		return "", nil
	}
}

func parseVariant(v string) colabapi.Variant {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "gpu":
		return colabapi.VariantGPU
	case "tpu":
		return colabapi.VariantTPU
	case "default", "":
		return colabapi.VariantDefault
	default:
		return colabapi.Variant(strings.ToUpper(v))
	}
}

func printResult(r execution.Result) {
	styleOK := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	styleErr := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	switch r.Status {
	case execution.StatusOK:
		fmt.Println(styleOK.Render(fmt.Sprintf("[%d] ok", r.ExecutionCount)))
	case execution.StatusAbort:
		fmt.Println(styleErr.Render("aborted"))
	default:
		fmt.Println(styleErr.Render(fmt.Sprintf("[%d] %s: %s", r.ExecutionCount, errName(r), errValue(r))))
	}
	if r.Stdout != "" {
		fmt.Print(r.Stdout)
	}
	if r.Stderr != "" {
		fmt.Fprint(os.Stderr, r.Stderr)
	}
	for _, line := range r.Traceback {
		fmt.Fprintln(os.Stderr, line)
	}
}

func errName(r execution.Result) string {
	if r.Error == nil {
		return "Error"
	}
	return r.Error.Ename
}

func errValue(r execution.Result) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Evalue
}

// runProgress drives the bubbles spinner through connection/execution
// phase transitions (spec.md §4.Q). Disabled entirely for non-TTY/--json,
// in which case phase() and start()/stop() are no-ops.
type runProgress struct {
	enabled bool
	program *tea.Program
	done    chan struct{}
}

func newRunProgress(enabled bool) *runProgress {
	return &runProgress{enabled: enabled}
}

func (p *runProgress) start() {
	if !p.enabled {
		return
	}
	p.program = tea.NewProgram(newSpinnerModel())
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.program.Run()
	}()
}

func (p *runProgress) phase(label string) {
	if !p.enabled || p.program == nil {
		return
	}
	p.program.Send(phaseMsg(label))
}

func (p *runProgress) stop() {
	if !p.enabled || p.program == nil {
		return
	}
	p.program.Send(quitMsg{})
	<-p.done
	p.program = nil
}

type phaseMsg string

type quitMsg struct{}

type spinnerModel struct {
	spin  spinner.Model
	label string
}

func newSpinnerModel() spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return spinnerModel{spin: s, label: "starting"}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case phaseMsg:
		m.label = string(msg)
		return m, nil
	case quitMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m spinnerModel) View() string {
	return fmt.Sprintf("%s %s\n", m.spin.View(), m.label)
}
