//go:build linux

package ipc

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPeerCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer client.Close()

	server, ok := <-accepted
	require.True(t, ok)
	defer server.Close()

	same, cred, err := VerifyPeerIsCurrentUser(server)
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, os.Getpid(), cred.PID)
	assert.Equal(t, os.Getuid(), cred.UID)

	pipeA, pipeB := net.Pipe()
	defer pipeA.Close()
	defer pipeB.Close()
	_, err = GetPeerCredentials(pipeA)
	assert.Error(t, err)
}
