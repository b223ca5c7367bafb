package logflags

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeLogger_usingLoggerFactory(t *testing.T) {
	require.Nil(t, loggerFactory)
	defer func() {
		loggerFactory = nil
	}()
	require.Nil(t, logOut)
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	expectedLogger := &logrusLogger{}
	SetLoggerFactory(func(flag bool, fields Fields, out io.Writer) Logger {
		assert.True(t, flag)
		assert.Equal(t, Fields{"foo": "bar"}, fields)
		assert.Equal(t, logOut, out)
		return expectedLogger
	})

	actual := makeLogger(true, Fields{"foo": "bar"})
	assert.Same(t, expectedLogger, actual)
}

func TestMakeLogger_withFlagFalse(t *testing.T) {
	actual := makeLogger(false, Fields{"foo": "bar"})
	entry, ok := actual.(*logrusLogger)
	require.True(t, ok)
	assert.Equal(t, logrus.ErrorLevel, entry.Entry.Logger.Level)
	assert.Equal(t, "bar", entry.Entry.Data["foo"])
}

func TestMakeLogger_withFlagTrue(t *testing.T) {
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()
	actual := makeLogger(true, Fields{"foo": "bar"})
	entry, ok := actual.(*logrusLogger)
	require.True(t, ok)
	assert.Equal(t, logrus.DebugLevel, entry.Entry.Logger.Level)
	assert.Equal(t, logOut, entry.Entry.Logger.Out)
	assert.Same(t, textFormatterInstance, entry.Entry.Logger.Formatter)

	actual.WithField("addr", "0x1000").Debugf("read %d bytes", 4)
	assert.Contains(t, logOut.(*bufferWriter).String(), "read 4 bytes")
	assert.Contains(t, logOut.(*bufferWriter).String(), "addr=0x1000")
}

func TestSetupComponents(t *testing.T) {
	defer func() {
		evaluator, memory, symbols, session, target = false, false, false, false, false
	}()
	require.Equal(t, errLogstrWithoutLog, Setup(false, "memory", ""))
	require.NoError(t, Setup(true, "memory,session", ""))
	assert.True(t, Memory())
	assert.True(t, Session())
	assert.False(t, Evaluator())
	assert.False(t, Symbols())
	assert.False(t, Target())
}

func TestSetupLogDestPath(t *testing.T) {
	defer func() {
		evaluator = false
		Close()
		log.SetOutput(os.Stderr)
	}()
	path := filepath.Join(t.TempDir(), "dlveval.log")
	require.NoError(t, Setup(true, "eval", path))
	EvaluatorLogger().Infof("hello %s", "log")
	Close()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "hello log")
	assert.Contains(t, string(buf), "layer=eval")
}

func TestSetupLogDestUnopenable(t *testing.T) {
	defer func() {
		evaluator = false
		Close()
	}()
	path := filepath.Join(t.TempDir(), "missing", "dir", "dlveval.log")
	require.NoError(t, Setup(true, "eval", path))
	assert.Nil(t, logOut)
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}
