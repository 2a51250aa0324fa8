package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `whatshound health` command, which queries a
// running daemon's /health endpoint.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running daemon",
		RunE:  runHealth,
	}
	cmd.Flags().String("address", "", "daemon address (defaults to the configured gateway address)")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = cfg.Gateway.Address
		if addr == "" {
			addr = ":8080"
		}
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if !strings.HasPrefix(addr, "http") {
		addr = "http://" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}

	fmt.Printf("Status:          %v\n", body["status"])
	fmt.Printf("Database:        %v\n", body["database"])
	fmt.Printf("Code search:     %v\n", body["code_search"])
	fmt.Printf("Active sessions: %v\n", body["active_sessions"])
	fmt.Printf("Uptime:          %v\n", body["uptime"])
	return nil
}
