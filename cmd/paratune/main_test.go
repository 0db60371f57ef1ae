package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gotest.tools/assert"

	"github.com/paratune/paratune/internal/options"
)

const tuningFile = `
scheduler: synchronous
system:
  type: quadratic
  parameters: [0]
data:
  - name: a
    values: [1]
  - name: b
    values: [3]
optimizer:
  exhaustive:
    step_length: 1
    number_of_steps: [4]
`

func writeFile(t *testing.T, name, raw string) string {
	path := filepath.Join(t.TempDir(), name)
	assert.NilError(t, os.WriteFile(path, []byte(raw), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLocalCommand(t *testing.T) {
	path := writeFile(t, "tuning.yaml", tuningFile)
	out, err := execute("local", "--tuning-file", path, "--ranks", "3", "--log-level", "error")
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "best parameters [2] with value 1 after 9 iterations"), out)
}

func TestLocalCommandFromEnvironment(t *testing.T) {
	t.Setenv("PARATUNE_TUNING_FILE", writeFile(t, "tuning.yaml", tuningFile))
	t.Setenv("PARATUNE_RANKS", "3")
	t.Setenv("PARATUNE_LOG_LEVEL", "error")
	out, err := execute("local")
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "best parameters [2]"), out)

	t.Setenv("PARATUNE_RANKS", "many")
	_, err = execute("local")
	assert.ErrorContains(t, err, "PARATUNE_RANKS")
}

func TestLocalCommandFromConfigFile(t *testing.T) {
	tuning := writeFile(t, "tuning.yaml", tuningFile)
	config := writeFile(t, "paratune.yaml", "tuning_file: "+tuning+"\nsize: 3\nlog:\n  level: error\n")
	out, err := execute("local", "--config-file", config)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "best parameters [2]"), out)

	bad := writeFile(t, "bad.yaml", "tuning_file: "+tuning+"\nbogus: true\n")
	_, err = execute("local", "--config-file", bad)
	assert.ErrorContains(t, err, "cannot unmarshal configuration")
}

func TestLocalCommandTooFewRanks(t *testing.T) {
	path := writeFile(t, "tuning.yaml", tuningFile)
	_, err := execute("local", "--tuning-file", path, "--ranks", "2", "--log-level", "error")
	assert.ErrorContains(t, err, "insufficient")
}

func TestRunCommandValidates(t *testing.T) {
	_, err := execute("run", "--log-level", "error")
	assert.ErrorContains(t, err, "a tuning file must be provided")

	_, err = execute("run", "--tuning-file", "t.yaml", "--rank", "2", "--size", "2")
	assert.ErrorContains(t, err, "outside a group")

	_, err = execute("run", "--config-file", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error finding configuration file")
}

func TestLoadOptionsPrecedence(t *testing.T) {
	config := writeFile(t, "paratune.yaml", `
tuning_file: from-config.yaml
bind_port: 9000
master_host: master
log:
  level: warn
`)
	v := viper.New()
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	registerCommonFlags(flags, v, options.DefaultOptions())
	registerGroupFlags(flags, v, options.DefaultOptions())
	assert.NilError(t, flags.Parse([]string{
		"--config-file", config, "--bind-port", "9100", "--rank", "1", "--size", "4",
	}))

	opts, err := loadOptions(v)
	assert.NilError(t, err)
	assert.Equal(t, opts.TuningFile, "from-config.yaml")
	assert.Equal(t, opts.BindPort, 9100, "flags beat the config file")
	assert.Equal(t, opts.MasterPort, 9100, "master port defaults to the bind port")
	assert.Equal(t, opts.MasterHost, "master")
	assert.Equal(t, opts.Rank, 1)
	assert.Equal(t, opts.Size, 4)
	assert.Equal(t, opts.Log.Level, "warn")
	assert.Equal(t, opts.ConnectAttempts, 10)
}

func TestMaybeInjectRootAlias(t *testing.T) {
	saved := os.Args
	defer func() { os.Args = saved }()

	root := newRootCmd()
	os.Args = []string{"paratune", "--tuning-file", "t.yaml"}
	maybeInjectRootAlias(root, "run")
	assert.DeepEqual(t, os.Args, []string{"paratune", "run", "--tuning-file", "t.yaml"})

	os.Args = []string{"paratune", "local"}
	maybeInjectRootAlias(root, "run")
	assert.DeepEqual(t, os.Args, []string{"paratune", "local"})
}

func TestVersionAndCompletion(t *testing.T) {
	out, err := execute("version")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(out, "paratune dev"), out)

	out, err = execute("completion", "bash")
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "paratune"))

	_, err = execute("completion", "fish")
	assert.ErrorContains(t, err, "invalid argument")
}
