//go:build !unix

package wsnet

import (
	"syscall"
)

var control func(network, address string, c syscall.RawConn) error
