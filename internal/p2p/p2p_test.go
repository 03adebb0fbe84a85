package p2p_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"coind/internal/p2p"
)

func runLoops(t *testing.T, l *p2p.Listeners) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loops := l.Loops()
	done := make(chan error, len(loops))
	for _, loop := range loops {
		go func() { done <- loop.Run(ctx) }()
	}
	return cancel, done
}

func TestExplicitBindServesBanner(t *testing.T) {
	l, err := p2p.Bind(p2p.Options{Binds: []string{"127.0.0.1:0"}, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	defer l.Close()
	cancel, done := runLoops(t, l)

	conn, err := net.DialTimeout("tcp", l.Addrs()[0].String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || line != p2p.Banner {
		t.Fatalf("banner = %q (%v)", line, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("accept loop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not return after interrupt")
	}
}

func TestExplicitBindFailureIsFatal(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	_, err = p2p.Bind(p2p.Options{Binds: []string{"127.0.0.1:0", busy.Addr().String()}})
	if !errors.Is(err, p2p.ErrBindFailure) {
		t.Fatalf("expected ErrBindFailure, got %v", err)
	}
}

func TestWildcardBindNeedsOneSocket(t *testing.T) {
	l, err := p2p.Bind(p2p.Options{Port: 0})
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	defer l.Close()
	if len(l.Addrs()) == 0 {
		t.Fatal("no wildcard socket bound")
	}
}

func TestConnectionLimit(t *testing.T) {
	l, err := p2p.Bind(p2p.Options{Binds: []string{"127.0.0.1:0"}, MaxConnections: 1})
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	defer l.Close()
	cancel, _ := runLoops(t, l)
	defer cancel()

	first, err := net.Dial("tcp", l.Addrs()[0].String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	if _, err := bufio.NewReader(first).ReadString('\n'); err != nil {
		t.Fatalf("first peer banner: %v", err)
	}

	second, err := net.Dial("tcp", l.Addrs()[0].String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if line, err := bufio.NewReader(second).ReadString('\n'); err == nil {
		t.Fatalf("second peer got %q past the limit", line)
	}
	if l.Active() != 1 {
		t.Fatalf("active = %d, want 1", l.Active())
	}
}

func TestConnectorHoldsPeer(t *testing.T) {
	peer, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer peer.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := peer.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := p2p.NewConnector(p2p.ConnectorOptions{Peers: []string{peer.Addr().String()}, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not dial")
	}
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || line != p2p.Banner {
		t.Fatalf("banner = %q (%v)", line, err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop")
	}
	if len(c.Connected()) != 0 {
		t.Fatalf("connected after stop = %v", c.Connected())
	}
}
