package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func cmdAuth(args []string) int {
	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	configPath := configFlag(fs)
	force := fs.Bool("force", false, "force a fresh token even if a cached one is still valid")
	validate := fs.Bool("validate", false, "only check whether a cached token is valid, without running the consent flow")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "colab auth: %v\n", err)
		return exitUsage
	}

	ctx := context.Background()

	if *validate {
		if !a.tokens.Valid() {
			fmt.Fprintln(os.Stderr, "colab auth: no valid cached credentials")
			return exitTransport
		}
		fmt.Println("credentials are valid")
		return exitOK
	}

	if _, err := a.tokens.Get(ctx, *force); err != nil {
		fmt.Fprintf(os.Stderr, "colab auth: authorization failed: %v\n", err)
		return exitTransport
	}
	fmt.Println("authorized")
	return exitOK
}
