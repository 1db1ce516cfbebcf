package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askfolio/askfolio/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "askfoliod",
		Short: "Askfolio daemon and CLI",
		Long:  "Askfolio daemon for serving the portfolio Q&A API and managing the similarity index",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.ReindexCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
