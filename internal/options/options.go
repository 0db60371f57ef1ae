package options

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/paratune/paratune/pkg/check"
	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/transport"
)

// Options stores all the configurable options of a paratune process.
type Options struct {
	ConfigFile string `json:"config_file"`
	TuningFile string `json:"tuning_file"`

	// Rank is this process's rank in a group of Size ranks. Rank 0 is the master.
	Rank int `json:"rank"`
	Size int `json:"size"`

	MasterHost string `json:"master_host"`
	MasterPort int    `json:"master_port"`

	BindIP   string `json:"bind_ip"`
	BindPort int    `json:"bind_port"`

	ConnectAttempts int `json:"connect_attempts"`
	// ConnectBackoff is the initial delay between connection attempts, in seconds.
	ConnectBackoff int `json:"connect_backoff"`

	// Metrics serves prometheus metrics and pprof next to the hub on the master.
	Metrics bool `json:"metrics"`

	Log logger.Config `json:"log"`
}

// DefaultOptions returns the default configurable options.
func DefaultOptions() *Options {
	return &Options{
		Size:            1,
		MasterHost:      "localhost",
		BindIP:          "0.0.0.0",
		BindPort:        8787,
		ConnectAttempts: 10,
		ConnectBackoff:  1,
		Log:             *logger.DefaultConfig(),
	}
}

// Validate validates the state of the Options struct.
func (o Options) Validate() []error {
	errs := []error{
		check.NotEmpty(o.TuningFile, "a tuning file must be provided"),
		check.GreaterThanOrEqualTo(float64(o.Size), 1, "size must be at least 1"),
		check.GreaterThanOrEqualTo(float64(o.Rank), 0, "rank must not be negative"),
		check.True(o.Rank < o.Size, "rank %d is outside a group of size %d", o.Rank, o.Size),
		check.GreaterThanOrEqualTo(float64(o.ConnectAttempts), 0,
			"connect_attempts must not be negative"),
		check.GreaterThanOrEqualTo(float64(o.ConnectBackoff), 0,
			"connect_backoff must not be negative"),
		validatePort(o.BindPort, "bind_port"),
	}
	if !o.IsMaster() {
		errs = append(errs,
			check.NotEmpty(o.MasterHost, "master host must be provided"),
			validatePort(o.MasterPort, "master_port"),
		)
	}
	return errs
}

func validatePort(port int, name string) error {
	if port < 0 || port > 65535 {
		return errors.Errorf("%s %d is not a valid port", name, port)
	}
	return nil
}

// Printable returns a printable string.
func (o Options) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve fully resolves the configuration, handling dynamic defaults.
func (o *Options) Resolve() {
	if o.MasterPort == 0 {
		o.MasterPort = o.BindPort
	}
}

// IsMaster reports whether the process runs rank 0.
func (o Options) IsMaster() bool { return o.Rank == rankctx.MasterRank }

// BindAddress is where the master listens.
func (o Options) BindAddress() string {
	return net.JoinHostPort(o.BindIP, strconv.Itoa(o.BindPort))
}

// DialConfig is how a slave reaches the master.
func (o Options) DialConfig() transport.DialConfig {
	return transport.DialConfig{
		Address:     fmt.Sprintf("ws://%s", net.JoinHostPort(o.MasterHost, strconv.Itoa(o.MasterPort))),
		Rank:        o.Rank,
		Size:        o.Size,
		Attempts:    uint64(o.ConnectAttempts),
		Interval:    time.Duration(o.ConnectBackoff) * time.Second,
		MaxInterval: 30 * time.Second,
	}
}
