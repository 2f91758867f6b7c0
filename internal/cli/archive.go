package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "archive [chat-id] [summary...]",
		Short: "Archive a conversation summary",
		Long:  "Stores a conversation summary as a searchable conv chunk under memory/chats/<chat-id>. With no summary argument the text is read from stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runArchive,
	}

	cmd.Flags().StringP("role", "r", "", "Visibility role (default: user:<chat-id>)")

	RootCmd.AddCommand(cmd)
}

func runArchive(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	chatID := args[0]

	var summary string
	if len(args) > 1 {
		summary = strings.Join(args[1:], " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		summary = string(data)
	}
	if strings.TrimSpace(summary) == "" {
		exitErr("archive", fmt.Errorf("empty summary"))
	}

	ix := openIndexer()
	defer ix.Close()

	n, err := ix.ArchiveSummary(cmd.Context(), chatID, summary, role)
	if err != nil {
		exitErr("archive", err)
	}

	b, _ := json.MarshalIndent(map[string]interface{}{"chat_id": chatID, "chunks": n}, "", "  ")
	fmt.Println(string(b))
}
