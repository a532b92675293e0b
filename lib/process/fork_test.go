package process

import (
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFork_InvalidPath(t *testing.T) {
	_, err := Fork("/invalid/path/to/plugin", nil)
	assert.Error(t, err)
}

func TestFork_EchoesThroughCat(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}

	p, err := Fork(cat, nil)
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	_, err = p.Stdin().Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(p.Stdout(), buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, p.Stdin().Close())
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after stdin closed")
	}
	assert.NoError(t, p.Close())
}

func TestClose_KillsRunningProcess(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	p, err := Fork(sleep, nil, "30")
	require.NoError(t, err)

	assert.NoError(t, p.Close())
	select {
	case <-p.Exited():
	default:
		t.Fatal("process still running after Close")
	}
}
