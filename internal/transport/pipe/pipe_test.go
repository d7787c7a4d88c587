package pipe

import (
	"context"
	"errors"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

func TestPair_HalfClose(t *testing.T) {
	a, b := Pair("a", "b")

	if err := a.Send(transport.Frame{ID: protocol.MsgClientJoined, Data: []byte{1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, ok := b.Poll()
	testutil.AssertEqual(t, "received", ok, true)
	testutil.AssertEqual(t, "id", f.ID, protocol.MsgClientJoined)

	_ = a.CloseWrite()
	testutil.AssertEqual(t, "a state", a.State(), transport.StateDisconnecting)
	testutil.AssertEqual(t, "b state", b.State(), transport.StatePeerClosed)

	if err := b.Send(transport.Frame{ID: protocol.MsgClientLeft, Data: []byte{1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok = a.Poll()
	testutil.AssertEqual(t, "half-closed end still receives", ok, true)

	if err := a.Send(transport.Frame{ID: protocol.MsgClientLeft}); !errors.Is(err, transport.ErrWriteClosed) {
		t.Errorf("expected ErrWriteClosed, got %v", err)
	}

	_ = b.Close()
	testutil.AssertEqual(t, "a closed", a.State(), transport.StateClosed)
	testutil.AssertEqual(t, "b closed", b.State(), transport.StateClosed)
}

func TestTransport_DialListen(t *testing.T) {
	ctx := context.Background()
	tr := New()

	if _, err := tr.Dial(ctx, "server"); !errors.Is(err, ErrRefused) {
		t.Fatalf("expected ErrRefused, got %v", err)
	}

	l, err := tr.Listen("server")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client, err := tr.Dial(ctx, "server")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "client remote", client.RemoteAddr(), "server")
	testutil.AssertEqual(t, "server remote", server.RemoteAddr(), "client:server")
	testutil.AssertEqual(t, "dials", tr.Dials(), 2)

	_ = l.Close()
	if _, err := tr.Dial(ctx, "server"); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused after close, got %v", err)
	}
}

func TestTransport_WildcardListener(t *testing.T) {
	ctx := context.Background()
	tr := New()
	l, err := tr.Listen(":2345")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer l.Close()

	if _, err := tr.Dial(ctx, "localhost:2345"); err != nil {
		t.Errorf("dialing any host: %v", err)
	}
	if _, err := tr.Dial(ctx, "localhost:2346"); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused for another port, got %v", err)
	}
}
