package logger

import (
	"github.com/sirupsen/logrus"
)

// OrDefault returns entry, or an entry on the standard logger when entry is nil.
func OrDefault(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return entry
}

// Component scopes entry (or the standard logger when nil) to a named component.
func Component(entry *logrus.Entry, name string) *logrus.Entry {
	return OrDefault(entry).WithField("component", name)
}

// Discard returns an entry that drops everything; handy in tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discard{})
	return logrus.NewEntry(l)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
