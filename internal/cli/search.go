package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbindex/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed chunks",
		Long:  "Runs the hybrid-ranked search: BM25 text relevance blended with the recency/frequency activation score.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().StringSlice("roles", nil, "Visibility roles to include (e.g. public,admin,user:alice)")
	cmd.Flags().StringSlice("types", nil, "Chunk types to include (kb, conv)")
	cmd.Flags().Float64("decay", 0, "Activation decay override")
	cmd.Flags().Bool("record", false, "Record result access to feed future activation")
	cmd.Flags().Bool("recent", false, "Skip text matching; return newest chunks of the given types")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	roles, _ := cmd.Flags().GetStringSlice("roles")
	types, _ := cmd.Flags().GetStringSlice("types")
	decay, _ := cmd.Flags().GetFloat64("decay")
	record, _ := cmd.Flags().GetBool("record")
	recent, _ := cmd.Flags().GetBool("recent")
	query := strings.Join(args, " ")

	ix := openIndexer()
	defer ix.Close()

	if recent {
		chunks, err := ix.Store().RecentByType(cmd.Context(), types, limit)
		if err != nil {
			exitErr("recent", err)
		}
		printJSON(chunks)
		return
	}

	results, err := ix.Search(cmd.Context(), query, limit, store.SearchOptions{
		Roles: roles,
		Types: types,
		Decay: decay,
	})
	if err != nil {
		exitErr("search", err)
	}

	if record && len(results) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ChunkID
		}
		if err := ix.RecordSearchAccess(cmd.Context(), ids, query); err != nil {
			exitErr("record access", err)
		}
	}

	printJSON(results)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
