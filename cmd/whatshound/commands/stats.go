package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"whatshound/pkg/whatshound/store"
)

// newStatsCmd creates the `whatshound stats` command.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show conversation statistics",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.ConversationStats(5)
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}

	fmt.Printf("Total messages: %d\n", stats.TotalMessages)
	fmt.Printf("Unique users:   %d\n", stats.UniqueUsers)
	if len(stats.TopUsers) > 0 {
		fmt.Println("Top users:")
		for i, u := range stats.TopUsers {
			fmt.Printf("  %d. %s (%d messages)\n", i+1, u.UserID, u.Messages)
		}
	}
	return nil
}
