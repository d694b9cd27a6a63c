package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/stream/log"
)

func TestGetLogger(t *testing.T) {
	l := log.GetLogger()
	assert.NotNil(t, l)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestDiscard(t *testing.T) {
	l := log.Discard()
	l.Info("dropped")
	assert.NotNil(t, l.Out)
}
