// Package bot composes the status engagement components into one process
// with an explicit start and shutdown order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bigbes/status-engage-bot/internal/action"
	"github.com/bigbes/status-engage-bot/internal/archive"
	"github.com/bigbes/status-engage-bot/internal/command"
	"github.com/bigbes/status-engage-bot/internal/config"
	"github.com/bigbes/status-engage-bot/internal/dashboard"
	"github.com/bigbes/status-engage-bot/internal/gateway"
	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/observer"
	"github.com/bigbes/status-engage-bot/internal/pipeline"
	"github.com/bigbes/status-engage-bot/internal/state"
	"github.com/bigbes/status-engage-bot/internal/telegram"
	"github.com/bigbes/status-engage-bot/internal/throttle"
)

// CountersFile is the name of the durable quota document in the data dir.
const CountersFile = "banprotection.json"

type Bot struct {
	cfg    *config.Config
	logger *slog.Logger

	client    *gateway.Client
	throttle  *throttle.Controller
	state     *state.Store
	commands  *command.Dispatcher
	pipeline  *pipeline.Pipeline
	poller    *gateway.Poller
	archive   *archive.Store
	dashboard *dashboard.Server
	observer  *observer.Observer
}

// New opens the persistent stores and builds every component. Nothing runs
// until Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	b := &Bot{cfg: cfg, logger: logger}
	b.client = gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token)

	counters := throttle.NewCounterStore(filepath.Join(cfg.DataDir, CountersFile), logger)
	b.throttle = throttle.New(throttle.PolicyFromConfig(cfg.BanProtection), counters, logger)

	b.state = state.Open(state.Options{
		Dir:     cfg.DataDir,
		MaxLogs: cfg.Logging.MaxLogs,
		Toggles: state.Toggles{
			BotEnabled: true,
			AutoView:   cfg.Features.AutoViewStatus,
			AutoLike:   cfg.Features.AutoLikeStatus,
			AutoReply:  cfg.Features.AutoReplyStatus,
		},
		Emojis:          cfg.Reactions,
		DownloadEnabled: cfg.Archive.Enabled,
		Throttle:        b.throttle,
		Connected:       b.client.Connected,
	}, nil, logger)

	b.commands = command.NewDispatcher(b.state, dashboardURL(cfg.Dashboard))

	var opts []pipeline.Option
	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.DBPath, cfg.Archive.Dir, b.client, logger)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		b.archive = arch
		opts = append(opts, pipeline.WithArchiver(arch))
	}

	b.pipeline = pipeline.New(pipeline.Config{
		SelfJID:          message.JID(cfg.Gateway.SelfJID),
		ExcludeNumbers:   cfg.Filters.ExcludeNumbers,
		OnlyTheseNumbers: cfg.Filters.OnlyTheseNumbers,
		ReplyMessage:     cfg.ReplyMessage,
	}, b.throttle, action.NewExecutor(b.client, logger), b.state, logger, opts...)

	b.poller = gateway.NewPoller(b.client, b.pipeline, b.commands, b.state, cfg.Gateway.PollTimeout, logger)

	if cfg.Dashboard.Enabled {
		deps := dashboard.Deps{
			State:           b.state,
			Session:         b.client,
			Commands:        b.commands,
			AvailableEmojis: cfg.AvailableEmojis,
		}
		if b.archive != nil {
			deps.Archive = b.archive
		}
		b.dashboard = dashboard.New(cfg.Dashboard, deps, logger)
	}

	if cfg.Telegram.Enabled {
		tg := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID)
		b.observer = observer.New(tg, b.commands, b.client, cfg, logger)
	}
	return b, nil
}

// Run starts every component and blocks until ctx is cancelled or the
// dashboard fails to serve. State is flushed before it returns.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.logger.Info("bot starting",
		"name", b.cfg.BotName,
		"gateway", b.cfg.Gateway.URL,
		"archive", b.archive != nil,
		"dashboard", b.dashboard != nil,
		"telegram", b.observer != nil,
	)
	b.state.AddLog(state.LogInfo, "🚀 "+b.cfg.BotName+" starting", nil)

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		runErr error
	)

	wg.Go(func() { b.throttle.Run(ctx) })
	wg.Go(func() { b.pipeline.Run(ctx) })
	wg.Go(func() {
		b.requestPairing(ctx)
		b.poller.Run(ctx)
	})
	if b.dashboard != nil {
		wg.Go(func() {
			if err := b.dashboard.Run(ctx); err != nil {
				b.logger.Error("dashboard failed", "err", err)
				errMu.Lock()
				runErr = err
				errMu.Unlock()
				cancel()
			}
		})
	}
	if b.observer != nil {
		wg.Go(func() { b.observer.Run(ctx) })
	}

	<-ctx.Done()
	b.logger.Info("shutting down bot")
	wg.Wait()

	b.state.AddLog(state.LogWarn, "🛑 "+b.cfg.BotName+" stopped", nil)
	err := b.state.Flush()
	if b.archive != nil {
		err = errors.Join(err, b.archive.Close())
	}
	if err != nil {
		b.logger.Error("shutdown flush failed", "err", err)
	}
	return runErr
}

// requestPairing asks for a pairing code when a phone number is configured
// and the gateway is not linked yet.
func (b *Bot) requestPairing(ctx context.Context) {
	phone := b.cfg.Gateway.PhoneNumber
	if phone == "" {
		return
	}
	s, err := b.client.Session(ctx)
	if err != nil {
		b.logger.Warn("session check before pairing failed", "err", err)
		return
	}
	if s.Connected {
		return
	}
	code, err := b.client.RequestPairingCode(ctx, phone)
	if err != nil {
		b.logger.Error("pairing code request failed", "err", err)
		b.state.AddLog(state.LogError, "Pairing code request failed: "+err.Error(), nil)
		return
	}
	b.logger.Info("pairing code issued", "code", code)
	b.state.AddLog(state.LogInfo, "🔑 Pairing code: "+code, nil)
	b.state.Broadcast(state.UpdatePairingCode, code)
}

// State returns the shared bot state.
func (b *Bot) State() *state.Store {
	return b.state
}

func dashboardURL(cfg config.DashboardConfig) string {
	if !cfg.Enabled {
		return ""
	}
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	listen := cfg.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen
}
