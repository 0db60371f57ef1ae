package main

import (
	"encoding/json"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paratune/paratune/internal/launcher"
	"github.com/paratune/paratune/internal/options"
	"github.com/paratune/paratune/pkg/check"
	"github.com/paratune/paratune/pkg/logger"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one rank of a tuning group",
		Args:  cobra.NoArgs,
	}
	registerCommonFlags(cmd.Flags(), v, options.DefaultOptions())
	registerGroupFlags(cmd.Flags(), v, options.DefaultOptions())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		opts, err := loadOptions(v)
		if err != nil {
			return err
		}
		logger.SetLogrus(opts.Log)
		logOptions(opts)

		l, err := launcher.New(*opts, nil)
		if err != nil {
			return err
		}
		return l.Run(cmd.Context())
	}

	return cmd
}

// loadOptions resolves the options from flags, environment and the configuration file, with the
// precedence flag > environment > config > default.
func loadOptions(v *viper.Viper) (*options.Options, error) {
	// Retrieve current Viper settings, which are either defaults or flags that overwrote them,
	// to learn where the configuration file is.
	opts, err := optionsFromViper(v)
	if err != nil {
		return nil, err
	}

	bs, err := readConfigFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if bs != nil {
		if opts, err = mergeConfigIntoViper(v, bs); err != nil {
			return nil, err
		}
	}

	opts.Resolve()

	if err = check.Validate(*opts); err != nil {
		return nil, errors.Wrap(err, "command-line arguments specify illegal configuration")
	}
	return opts, nil
}

func mergeConfigIntoViper(v *viper.Viper, bs []byte) (*options.Options, error) {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal yaml configuration file")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, errors.Wrap(err, "can't merge configuration to viper")
	}
	return optionsFromViper(v)
}

func readConfigFile(configPath string) ([]byte, error) {
	if configPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func optionsFromViper(v *viper.Viper) (*options.Options, error) {
	bs, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := options.DefaultOptions()
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}

func logOptions(opts *options.Options) {
	printable, err := opts.Printable()
	if err != nil {
		log.WithError(err).Warn("cannot print options")
		return
	}
	log.Debugf("options: %s", printable)
}
