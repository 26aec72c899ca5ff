package wsnet

import (
	"context"
	"fmt"
	"net"
)

// Listen listens on the TCP address addr with SO_REUSEADDR set where the
// platform supports it, so a restarted server can rebind immediately.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: control,
	}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}
	return l, nil
}
