package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	ix := openIndexer()
	defer ix.Close()

	st, err := ix.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(st)
}
