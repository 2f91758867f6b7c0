package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kbindex/internal/index"
)

func init() {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a file or directory",
		Long:  "Parses the file (or every supported file under the directory), splits it into chunks, and stores them. Re-indexing a file replaces its chunks.",
		Args:  cobra.ExactArgs(1),
		Run:   runIndex,
	}

	cmd.Flags().StringP("role", "r", "public", "Visibility role for the indexed chunks")
	cmd.Flags().Bool("recursive", false, "Recurse into subdirectories")

	RootCmd.AddCommand(cmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	recursive, _ := cmd.Flags().GetBool("recursive")

	ix := openIndexer()
	defer ix.Close()

	info, err := os.Stat(args[0])
	if err != nil {
		exitErr("stat path", err)
	}

	if info.IsDir() {
		res, err := ix.IndexDirectory(cmd.Context(), args[0], recursive, role)
		if err != nil {
			exitErr("index directory", err)
		}
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(b))
		return
	}

	n, err := ix.IndexFile(cmd.Context(), args[0], role)
	if err != nil {
		exitErr("index file", err)
	}
	b, _ := json.MarshalIndent(index.DirResult{Files: 1, Chunks: n}, "", "  ")
	fmt.Println(string(b))
}
