package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/paratune/paratune/internal/options"
)

// bindFlag makes the flag the lowest-precedence source of key after the config file.
func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

func registerCommonFlags(flags *pflag.FlagSet, v *viper.Viper, d *options.Options) {
	flags.String("config-file", d.ConfigFile, "path to the process configuration file")
	flags.String("tuning-file", d.TuningFile, "path to the tuning file")
	flags.String("log-level", d.Log.Level,
		"set the logging level (can be one of: debug, info, warn, error, or fatal)")
	flags.Bool("log-color", d.Log.Color, "enable colored output")
	flags.Bool("log-json", d.Log.JSON, "log one JSON object per line")

	bindFlag(v, flags, "config_file", "config-file")
	bindFlag(v, flags, "tuning_file", "tuning-file")
	bindFlag(v, flags, "log.level", "log-level")
	bindFlag(v, flags, "log.color", "log-color")
	bindFlag(v, flags, "log.json", "log-json")
}

func registerGroupFlags(flags *pflag.FlagSet, v *viper.Viper, d *options.Options) {
	flags.Int("rank", d.Rank, "rank of this process; rank 0 is the master")
	flags.Int("size", d.Size, "number of ranks in the group")
	flags.String("master-host", d.MasterHost, "host the master listens on")
	flags.Int("master-port", d.MasterPort, "port the master listens on (defaults to bind-port)")
	flags.String("bind-ip", d.BindIP, "IP the master binds to")
	flags.Int("bind-port", d.BindPort, "port the master binds to")
	flags.Int("connect-attempts", d.ConnectAttempts,
		"attempts to connect to the master before giving up (0 retries forever)")
	flags.Int("connect-backoff", d.ConnectBackoff,
		"initial delay between connection attempts, in seconds")
	flags.Bool("metrics", d.Metrics, "serve prometheus metrics and pprof on the master")

	for key, name := range map[string]string{
		"rank":             "rank",
		"size":             "size",
		"master_host":      "master-host",
		"master_port":      "master-port",
		"bind_ip":          "bind-ip",
		"bind_port":        "bind-port",
		"connect_attempts": "connect-attempts",
		"connect_backoff":  "connect-backoff",
		"metrics":          "metrics",
	} {
		bindFlag(v, flags, key, name)
	}
}
