package core

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/netutil"

	"github.com/searchktools/poolserver/config"
)

// listen opens the TCP listener described by cfg
func listen(cfg config.Config) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlSocket}

	ln, err := lc.Listen(context.Background(), "tcp", cfg.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", cfg.Addr())
	}

	// Connections beyond the cap stay in the kernel backlog until one closes
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	return ln, nil
}
