// texttree serves and edits a versioned hierarchical text document
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFiles   []string
	serverAddr string

	rootCmd = &cobra.Command{
		Use:   "texttree",
		Short: "Versioned document > paragraph > sentence > word text store",
		Long: `texttree keeps a document as an immutable tree of paragraphs, sentences
and words. Every edit produces a new version that reuses unchanged subtrees.
"serve" runs the gRPC service; the other commands are clients of it.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to read (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051", "server address for client commands")

	rootCmd.AddCommand(serveCmd, showCmd, editCmd, historyCmd, switchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
