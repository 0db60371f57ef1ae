package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.Empty(t, DefaultConfig().Validate())
	require.Len(t, Config{Level: "loud"}.Validate(), 1)
}

func TestSetLogrus(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	SetLogrus(Config{Level: "debug"})
	require.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	require.Panics(t, func() { SetLogrus(Config{Level: "loud"}) })
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	Component(logrus.NewEntry(l), "scheduler").Info("hello")
	require.Contains(t, buf.String(), `"component":"scheduler"`)

	require.NotNil(t, OrDefault(nil))
	Discard().Error("dropped")
}
