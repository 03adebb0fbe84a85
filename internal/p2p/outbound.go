package p2p

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"coind/internal/logging"
)

// DefaultRedialInterval is how long the connector waits before redialing a
// peer that dropped or refused.
const DefaultRedialInterval = 30 * time.Second

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	Logger *slog.Logger
	// Peers are dialed and kept connected.
	Peers   []string
	Timeout time.Duration
	Redial  time.Duration
	// Dial overrides the network dial, for example to route through a proxy.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Connector keeps outbound connections to a fixed peer list (-connect and
// -addnode).
type Connector struct {
	opts   ConnectorOptions
	logger *slog.Logger

	mu        sync.Mutex
	connected map[string]bool
}

// NewConnector returns a connector for opts.Peers.
func NewConnector(opts ConnectorOptions) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Redial <= 0 {
		opts.Redial = DefaultRedialInterval
	}
	if opts.Dial == nil {
		dialer := &net.Dialer{Timeout: opts.Timeout}
		opts.Dial = dialer.DialContext
	}
	return &Connector{
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "net"),
		connected: make(map[string]bool),
	}
}

// Connected returns the peers that currently have an open connection.
func (c *Connector) Connected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var peers []string
	for _, peer := range c.opts.Peers {
		if c.connected[peer] {
			peers = append(peers, peer)
		}
	}
	return peers
}

// Run dials every peer and holds the connections until ctx is done.
func (c *Connector) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, peer := range c.opts.Peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.keep(ctx, peer)
		}()
	}
	wg.Wait()
	return nil
}

func (c *Connector) keep(ctx context.Context, peer string) {
	for {
		c.session(ctx, peer)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.Redial):
		}
	}
}

func (c *Connector) session(ctx context.Context, peer string) {
	dialCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	conn, err := c.opts.Dial(dialCtx, "tcp", peer)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("peer dial failed", logging.String("peer", peer), logging.Error(err))
		}
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	c.setConnected(peer, true)
	defer c.setConnected(peer, false)
	c.logger.Info("connected to peer", logging.String("peer", peer))

	if _, err := conn.Write([]byte(Banner)); err != nil {
		return
	}
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connector) setConnected(peer string, up bool) {
	c.mu.Lock()
	c.connected[peer] = up
	c.mu.Unlock()
}
