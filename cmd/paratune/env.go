package main

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnv sets every flag not given on the command line from its environment variable, if set.
// Such flags count as changed, so they take precedence over the configuration file.
func bindEnv(prefix string, cmd *cobra.Command) error {
	var errMsgs []string
	flags := cmd.Flags()
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}
		envName := prefix + strings.ReplaceAll(strings.ToUpper(flag.Name), "-", "_")
		if value, ok := syscall.Getenv(envName); ok {
			if err := flags.Set(flag.Name, value); err != nil {
				err = errors.Wrapf(err, "failed to parse %s (%s)", envName, flag.Value.Type())
				errMsgs = append(errMsgs, err.Error())
			}
		}
	})
	if len(errMsgs) == 0 {
		return nil
	}
	msg := strings.Join(errMsgs, ";")
	return errors.New(msg)
}
