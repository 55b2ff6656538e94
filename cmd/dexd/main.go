package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dexd",
	Short: "Constant-product exchange node",
	Long: `dexd runs a single-process exchange ledger: a pool factory, its
native/token pools and the ERC-20 style tokens they trade. The node serves
the dex JSON-RPC namespace and streams state diffs to subscribers.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
