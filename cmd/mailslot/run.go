package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/mailslot/internal/alert"
	discordalert "github.com/zulandar/mailslot/internal/alert/discord"
	slackalert "github.com/zulandar/mailslot/internal/alert/slack"
	"github.com/zulandar/mailslot/internal/bot"
	"github.com/zulandar/mailslot/internal/config"
	"github.com/zulandar/mailslot/internal/dashboard"
	"github.com/zulandar/mailslot/internal/media"
	"github.com/zulandar/mailslot/internal/relay"
	"github.com/zulandar/mailslot/internal/session"
	"github.com/zulandar/mailslot/internal/telegraph/telegram"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Long:  "Connects to Telegram, handles submissions and publishes approved posts until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to mailslot config file")
	return cmd
}

func runBot(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	accounts, err := openLedger(cfg, gormDB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	adapter, err := telegram.New(telegram.AdapterOpts{
		Token:          cfg.Telegram.Token,
		PollTimeoutSec: cfg.Telegram.PollTimeoutSec,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	})
	if err != nil {
		return err
	}

	sink, err := createAlertSink(cfg)
	if err != nil {
		return err
	}

	storeOpts := media.StoreOpts{Dir: cfg.Storage.MediaDir, Fetcher: adapter}
	if cfg.Media.S3.Bucket != "" {
		mirror, err := media.NewS3Mirror(ctx, cfg.Media.S3)
		if err != nil {
			return err
		}
		storeOpts.Mirror = mirror
	}
	store, err := media.NewStore(storeOpts)
	if err != nil {
		return err
	}

	admins := cfg.AdminIDs()
	pipeline, err := relay.NewPipeline(relay.PipelineOpts{
		Adapter: adapter,
		History: accounts,
		Admins:  admins,
		Out:     out,
	})
	if err != nil {
		return err
	}
	claims, err := relay.NewClaims(gormDB)
	if err != nil {
		return err
	}
	coordinator, err := relay.NewCoordinator(relay.CoordinatorOpts{
		Adapter:       adapter,
		Claims:        claims,
		Ledger:        accounts,
		Admins:        admins,
		Channel:       cfg.Channel.ID,
		Footer:        cfg.Channel.Footer,
		FallbackVideo: cfg.Storage.FallbackVideo,
		Alerts:        sink,
		Out:           out,
	})
	if err != nil {
		return err
	}
	broadcaster, err := relay.NewBroadcaster(relay.BroadcasterOpts{
		Adapter: adapter,
		Users:   accounts,
		Out:     out,
	})
	if err != nil {
		return err
	}

	router, err := bot.NewRouter(bot.RouterOpts{
		Adapter:          adapter,
		Sessions:         session.NewStore(),
		Accounts:         accounts,
		Media:            store,
		Pipeline:         pipeline,
		Coordinator:      coordinator,
		Broadcaster:      broadcaster,
		PrimaryAdmin:     cfg.Admins.Primary,
		SubscriptionChat: cfg.Channel.SubscriptionChat,
		SubscriptionURL:  cfg.Channel.SubscriptionURL,
		ChatLink:         cfg.Channel.ChatLink,
		ChannelLink:      cfg.Channel.ChannelLink,
		Out:              out,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Adapter:       adapter,
		Handler:       router.Handle,
		Workers:       cfg.Workers,
		Reconciler:    accounts,
		ReconcileCron: cfg.Ledger.ReconcileCron,
		Alerts:        sink,
		Out:           out,
	})
	if err != nil {
		return err
	}

	if cfg.Dashboard.Port > 0 {
		go func() {
			if err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:   gormDB,
				Port: cfg.Dashboard.Port,
				Out:  out,
			}); err != nil {
				log.Printf("mailslot: dashboard: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}

// createAlertSink builds the ops alert sink from the config.
func createAlertSink(cfg *config.Config) (alert.Sink, error) {
	switch cfg.Alerts.Platform {
	case "":
		return alert.Nop{}, nil
	case "slack":
		return slackalert.New(slackalert.SinkOpts{
			BotToken:  cfg.Alerts.Slack.BotToken,
			ChannelID: cfg.Alerts.Channel,
		})
	case "discord":
		return discordalert.New(discordalert.SinkOpts{
			BotToken:  cfg.Alerts.Discord.BotToken,
			ChannelID: cfg.Alerts.Channel,
		})
	default:
		return nil, fmt.Errorf("alerts: unsupported platform %q", cfg.Alerts.Platform)
	}
}
