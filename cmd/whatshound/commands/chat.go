package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"whatshound/pkg/whatshound/assistant"
	"whatshound/pkg/whatshound/chunkhound"
	"whatshound/pkg/whatshound/store"
)

// localUser is the session key for CLI conversations.
const localUser = "cli:local"

// newChatCmd creates the `whatshound chat` command for talking to the
// assistant from the terminal, without any messaging channel.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant from the terminal",
		Long: `Send one message to the assistant, or start an interactive
session when no message is given.

Examples:
  whatshound chat "what is 15 * 4"
  whatshound chat "remind me to call mom"
  whatshound chat`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := assistant.NewRegistry(st, assistant.RegistryOptions{
		MaxHistory: cfg.Assistant.MaxHistory,
	}, logger)
	bot := assistant.New(st, registry, assistant.Options{
		Name:        cfg.Assistant.Name,
		MaxReplyLen: cfg.Assistant.MaxReplyLen,
	}, logger)

	if cfg.ChunkHound.Enabled {
		proxy := chunkhound.NewProxy(cfg.ChunkHound, logger)
		if err := proxy.Start(ctx); err != nil {
			logger.Warn("code search engine unavailable", "error", err)
		}
		bot.SetCodeSearcher(proxy)
		defer proxy.Stop()
	}

	if len(args) > 0 {
		reply := bot.HandleMessage(ctx, localUser, "", strings.Join(args, " "))
		fmt.Println(reply)
		return nil
	}

	fmt.Println("WhatsHound interactive chat. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		fmt.Println(bot.HandleMessage(ctx, localUser, "", line))
	}
	return scanner.Err()
}
