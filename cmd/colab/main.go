package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/colabcli/colab/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "run":
		return cmdRun(args[1:])
	case "status":
		return cmdStatus(args[1:])
	case "history":
		return cmdHistory(args[1:])
	case "auth":
		return cmdAuth(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "colab: unknown command %q\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: colab <command> [flags]

commands:
  run <code>    execute code in a Colab kernel session
  status        show CCU balance and authenticated user
  history       query the execution history log
  auth          drive the Google OAuth2 adapter

run "colab <command> -h" for flags specific to that command.`)
}

// configFlag is shared by every subcommand's FlagSet.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", config.DefaultPath(), "path to config.yaml")
}
