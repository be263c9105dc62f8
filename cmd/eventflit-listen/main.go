// Command eventflit-listen connects to an Eventflit app, subscribes to the
// given channels and logs every event it receives.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/eventflit/eventflit-go"
	"github.com/eventflit/eventflit-go/push"
)

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:   "eventflit-listen",
		Short: "Listen to Eventflit channels",
		Long:  "eventflit-listen connects to an Eventflit app, subscribes to channels and prints every event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configFile)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	defineFlags(cmd)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, configFile string) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd, configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	opts := []eventflit.ClientOption{
		eventflit.WithLogger(log.Logger),
		eventflit.WithMetricsRegisterer(registry),
	}
	if cfg.UserID != "" {
		userID := cfg.UserID
		opts = append(opts, eventflit.WithUserDataFetcher(func() eventflit.Member {
			return eventflit.Member{UserID: userID}
		}))
	}
	if cfg.PushBaseURL != "" {
		opts = append(opts, eventflit.WithPush(push.WithBaseURL(cfg.PushBaseURL)))
	}

	client, err := eventflit.NewClient(cfg.clientConfig(), eventflit.LogErrors(log.Logger), opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnStateChange(func(old, new eventflit.ConnectionState) {
		log.Info().Stringer("from", old).Stringer("to", new).Msg("connection state changed")
	})
	client.OnSubscribed(func(channel string) {
		log.Info().Str("channel", channel).Msg("subscribed")
	})
	client.OnSubscriptionFailed(func(channel string, err error) {
		log.Error().Err(err).Str("channel", channel).Msg("subscription failed")
	})
	client.Bind(func(ev eventflit.Event) {
		log.Info().Str("channel", ev.Channel).Str("event", ev.Name).Str("data", ev.Raw).Msg("event")
	})

	for _, name := range cfg.Channels {
		ch := client.Subscribe(name)
		if pc, ok := ch.Presence(); ok {
			logMembers(pc)
		}
	}

	if cfg.PushToken != "" {
		if err := setupPush(client.Push(), cfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddress != "" {
		srv := serveMetrics(cfg.MetricsAddress, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func logMembers(pc *eventflit.PresenceChannel) {
	pc.Bind(eventflit.EventSubscriptionSucceeded, func(eventflit.Event) {
		for _, m := range pc.Members() {
			log.Info().Str("channel", pc.Name()).Str("user_id", m.UserID).Interface("user_info", m.UserInfo).Msg("member")
		}
	})
	pc.Bind(eventflit.EventMemberAdded, func(ev eventflit.Event) {
		log.Info().Str("channel", pc.Name()).Str("member", ev.Raw).Msg("member added")
	})
	pc.Bind(eventflit.EventMemberRemoved, func(ev eventflit.Event) {
		log.Info().Str("channel", pc.Name()).Str("member", ev.Raw).Msg("member removed")
	})
}

func setupPush(p *push.Client, cfg listenConfig) error {
	token, err := hex.DecodeString(cfg.PushToken)
	if err != nil {
		return errors.New("--push.token must be hex encoded")
	}
	p.OnRegistered(func(clientID string) {
		log.Info().Str("client_id", clientID).Msg("registered for push notifications")
	})
	p.OnRegistrationFailed(func(err error) {
		log.Error().Err(err).Msg("push registration failed")
	})
	p.OnInterestSubscribed(func(interest string) {
		log.Info().Str("interest", interest).Msg("subscribed to interest")
	})
	p.OnQueueHalted(func(task push.Task, err error) {
		log.Error().Err(err).Str("task", task.ID).Msg("push queue halted")
	})
	for _, interest := range cfg.PushInterests {
		if err := p.Subscribe(interest); err != nil {
			return err
		}
	}
	p.Register(token)
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("address", addr).Msg("serving metrics")
	return srv
}

var logLevels = map[string]zerolog.Level{
	"TRACE": zerolog.TraceLevel,
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"NONE":  zerolog.Disabled,
}

func setupLogging(level string) {
	if isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}
	lvl, ok := logLevels[strings.ToUpper(level)]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
