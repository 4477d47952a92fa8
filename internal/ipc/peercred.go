package ipc

import (
	"errors"
	"net"
	"os"
)

// ErrPeerCredUnsupported means the platform cannot identify socket peers.
var ErrPeerCredUnsupported = errors.New("peer credentials not supported")

// PeerCredentials holds the credentials of a peer process
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// VerifyPeerIsCurrentUser checks if the peer is running as the current user
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, *PeerCredentials, error) {
	cred, err := GetPeerCredentials(conn)
	if err != nil {
		return false, nil, err
	}
	return cred.UID == os.Getuid(), cred, nil
}
