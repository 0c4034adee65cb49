package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodisdb/lodis/sandbox"
)

var digestCmd = &cobra.Command{
	Use:   "digest [file]",
	Short: "Print the digest a script is cached under",
	Long: `Compute the SHA-1 digest of a script body.

The digest identifies the script in the cache: it is what EVALSHA takes and
what SCRIPT LOAD returns. Identical bodies always digest identically.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDigest,
}

func init() {
	digestCmd.Flags().StringP("code", "c", "", "Script body to digest")
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) {
	source, err := readSource(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(cmd.OutOrStdout(), sandbox.Sha1Hex(source))
}
