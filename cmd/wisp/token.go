package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wisp/internal/auth"
	"wisp/internal/logging"
	"wisp/internal/storage"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage daemon auth tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Issue a new auth token",
	Long: `Issue a token for the workspace daemon. The token is printed once and
cannot be recovered; only its hash is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued tokens",
	RunE:  runTokenList,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a token by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRevoke,
}

func init() {
	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// openKeyStore opens the workspace database and its key table.
func openKeyStore() (*auth.KeyStore, *storage.DB, error) {
	root, err := resolveWorkspace()
	if err != nil {
		return nil, nil, err
	}
	log := logging.Discard()
	db, err := storage.Open(root, log)
	if err != nil {
		return nil, nil, err
	}
	keys, err := auth.NewKeyStore(db.Conn(), log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return keys, db, nil
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	keys, db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	key, raw, err := keys.Issue(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Token created for %q (id %s):\n\n  %s\n\n", key.Name, key.ID, raw)
	fmt.Println("Store it now; it cannot be shown again.")
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	keys, db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := keys.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tokens issued.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tCREATED\tLAST USED\tSTATUS")
	for _, key := range list {
		lastUsed := "never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format(time.RFC3339)
		}
		status := "active"
		if key.Revoked {
			status = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s…\t%s\t%s\t%s\n",
			key.ID, key.Name, key.LookupPrefix,
			key.CreatedAt.Format(time.RFC3339), lastUsed, status)
	}
	return w.Flush()
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	keys, db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := keys.Revoke(args[0]); err != nil {
		return err
	}
	fmt.Println("Token revoked.")
	return nil
}
