package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/chatlog"
	"github.com/psds-microservice/helpdesk-service/internal/config"
	"github.com/psds-microservice/helpdesk-service/internal/database"
	"github.com/psds-microservice/helpdesk-service/internal/reconciler"
	"github.com/psds-microservice/helpdesk-service/internal/store"
	"github.com/spf13/cobra"
)

var followInterval time.Duration

var followCmd = &cobra.Command{
	Use:   "follow <conversation-id>",
	Short: "Poll a conversation and print new messages as they appear",
	Args:  cobra.ExactArgs(1),
	RunE:  runFollow,
}

func init() {
	followCmd.Flags().DurationVar(&followInterval, "interval", reconciler.UserPollInterval, "polling interval")
}

func runFollow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("conversation id %q: %w", args[0], err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	r := reconciler.New(reconciler.StoreFetcher{Store: store.NewPostgres(db), ID: id}, followInterval)
	r.OnAppend = func(m chatlog.Message) {
		fmt.Printf("[%s] %s: %s\n",
			m.Timestamp.Format(chatlog.TimeLayout),
			strings.ToUpper(m.Sender.String()),
			m.Text)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	r.Run(ctx)
	return nil
}
