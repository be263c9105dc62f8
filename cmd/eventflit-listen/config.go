package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eventflit/eventflit-go"
)

type listenConfig struct {
	Key             string
	Host            string
	Cluster         string
	Port            int
	Insecure        bool
	Channels        []string
	AuthEndpoint    string
	AuthSecret      string
	UserID          string
	ActivityTimeout time.Duration
	MaxReconnects   int
	RawPayloads     bool
	LogLevel        string
	MetricsAddress  string
	PushToken       string
	PushInterests   []string
	PushBaseURL     string
}

func defineFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("key", "k", "", "application key")
	cmd.Flags().StringP("host", "", "", "websocket host, overrides cluster")
	cmd.Flags().StringP("cluster", "", "", "cluster name, e.g. eu")
	cmd.Flags().IntP("port", "", 0, "websocket port (default 443, or 80 with --insecure)")
	cmd.Flags().BoolP("insecure", "", false, "connect over ws:// instead of wss://")
	cmd.Flags().StringSliceP("channel", "C", nil, "channel to subscribe to, repeatable")
	cmd.Flags().StringP("auth.endpoint", "", "", "URL authorizing private and presence channels")
	cmd.Flags().StringP("auth.secret", "", "", "application secret for signing subscriptions locally")
	cmd.Flags().StringP("auth.user_id", "", "", "user id announced on presence channels with --auth.secret")
	cmd.Flags().DurationP("activity_timeout", "", 0, "override the server activity timeout")
	cmd.Flags().IntP("max_reconnects", "", 0, "give up after this many reconnect attempts, 0 is unbounded")
	cmd.Flags().BoolP("raw", "", false, "print payloads as received instead of decoding JSON")
	cmd.Flags().StringP("log.level", "", "info", "set the log level: trace, debug, info, error or none")
	cmd.Flags().StringP("metrics.address", "", "", "serve Prometheus metrics on this address, e.g. :9100")
	cmd.Flags().StringP("push.token", "", "", "hex device token to register for push notifications")
	cmd.Flags().StringSliceP("push.interest", "", nil, "push interest to subscribe to, repeatable")
	cmd.Flags().StringP("push.base_url", "", "", "override the push service endpoint")
}

var boundFlags = []string{
	"key", "host", "cluster", "port", "insecure", "channel", "auth.endpoint", "auth.secret",
	"auth.user_id", "activity_timeout", "max_reconnects", "raw", "log.level", "metrics.address",
	"push.token", "push.interest", "push.base_url",
}

// loadConfig merges flags, EVENTFLIT_* environment variables and an optional
// config file, in that order of precedence.
func loadConfig(cmd *cobra.Command, configFile string) (listenConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("EVENTFLIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for _, flag := range boundFlags {
			_ = v.BindPFlag(flag, cmd.Flags().Lookup(flag))
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return listenConfig{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	cfg := listenConfig{
		Key:             v.GetString("key"),
		Host:            v.GetString("host"),
		Cluster:         v.GetString("cluster"),
		Port:            v.GetInt("port"),
		Insecure:        v.GetBool("insecure"),
		Channels:        v.GetStringSlice("channel"),
		AuthEndpoint:    v.GetString("auth.endpoint"),
		AuthSecret:      v.GetString("auth.secret"),
		UserID:          v.GetString("auth.user_id"),
		ActivityTimeout: v.GetDuration("activity_timeout"),
		MaxReconnects:   v.GetInt("max_reconnects"),
		RawPayloads:     v.GetBool("raw"),
		LogLevel:        v.GetString("log.level"),
		MetricsAddress:  v.GetString("metrics.address"),
		PushToken:       v.GetString("push.token"),
		PushInterests:   v.GetStringSlice("push.interest"),
		PushBaseURL:     v.GetString("push.base_url"),
	}
	if cfg.AuthEndpoint != "" && cfg.AuthSecret != "" {
		return listenConfig{}, errors.New("--auth.endpoint and --auth.secret are mutually exclusive")
	}
	return cfg, nil
}

// clientConfig maps the CLI configuration onto the library's.
func (c listenConfig) clientConfig() eventflit.Config {
	cfg := eventflit.Config{
		Key:                  c.Key,
		Host:                 c.Host,
		Cluster:              c.Cluster,
		Port:                 c.Port,
		Insecure:             c.Insecure,
		MaxReconnectAttempts: c.MaxReconnects,
		ActivityTimeout:      c.ActivityTimeout,
		RawPayloads:          c.RawPayloads,
	}
	switch {
	case c.AuthEndpoint != "":
		cfg.Auth = eventflit.AuthEndpoint{URL: c.AuthEndpoint}
	case c.AuthSecret != "":
		cfg.Auth = eventflit.InlineSecret{Secret: c.AuthSecret}
	}
	return cfg
}
