//go:build unix

package logflags

import (
	"io"
	"log"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSetupLogDestFd(t *testing.T) {
	defer func() {
		evaluator = false
		Close()
		log.SetOutput(os.Stderr)
	}()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	// logflags owns and closes the descriptor it is given
	fd, err := unix.Dup(int(w.Fd()))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, Setup(true, "eval", strconv.Itoa(fd)))
	require.NotNil(t, logOut)
	EvaluatorLogger().Infof("hello %s", "fd")
	Close()

	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "hello fd")
	assert.Contains(t, string(buf), "layer=eval")
}

func TestSetupLogDestNegativeFd(t *testing.T) {
	defer func() {
		evaluator = false
		Close()
	}()
	require.NoError(t, Setup(true, "eval", "-1"))
	assert.Nil(t, logOut)
}
