package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvelasco/campusd/auth"
	"github.com/nvelasco/campusd/config"
	bboltstorage "github.com/nvelasco/campusd/storage/bbolt"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <email>",
	Short: "Clear the login lockout for an account",
	Long: `Clears the failed-attempt record for the given email so the account
can log in again immediately. Run against the same data directory as the
server; the server must be stopped first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		path := filepath.Join(cfg.DataDir, "auth.db")
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no auth state at %s: %w", path, err)
		}

		store, err := bboltstorage.NewStoreFromFile(path, nil)
		if err != nil {
			return fmt.Errorf("failed to open auth state storage: %w", err)
		}
		defer store.Close()

		throttle := auth.NewThrottle(store, nil)
		throttle.Unlock(args[0])
		fmt.Printf("Cleared lockout state for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
	unlockCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides config)")
}
