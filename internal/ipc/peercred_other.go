//go:build !linux && !darwin

package ipc

import "net"

// GetPeerCredentials is unavailable on this platform.
func GetPeerCredentials(net.Conn) (*PeerCredentials, error) {
	return nil, ErrPeerCredUnsupported
}
