package osc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func startListener(t *testing.T) *Listener {
	t.Helper()
	l := NewListener("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		l.Close()
		l.Wait()
	})
	return l
}

func send(t *testing.T, addr net.Addr, data []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestListenerReceivesBundle(t *testing.T) {
	l := startListener(t)

	if !l.LastPacket().IsZero() {
		t.Error("LastPacket should be zero before any packet")
	}

	send(t, l.LocalAddr(), encodeBundle(
		encodeMessage("/channel/1/stage/layer/10/foreground/file/path", "nebula-7.mxf"),
		encodeMessage("/channel/1/stage/layer/10/foreground/file/time", float32(3), float32(90)),
	))

	waitFor(t, func() bool { return l.Stats().Packets == 1 })

	layer, ok := l.Snapshot(1, 10)
	if !ok {
		t.Fatal("Snapshot(1, 10) missing")
	}
	if layer.Foreground.Name != "nebula-7.mxf" || layer.Foreground.Duration != 90 {
		t.Errorf("foreground = %+v", layer.Foreground)
	}
	if l.LastPacket().IsZero() {
		t.Error("LastPacket not updated")
	}
}

func TestListenerDropsMalformed(t *testing.T) {
	l := startListener(t)

	send(t, l.LocalAddr(), []byte("HELLO"))
	send(t, l.LocalAddr(), []byte("/broken"))
	send(t, l.LocalAddr(), encodeMessage("/channel/1/framerate", int32(50)))

	waitFor(t, func() bool {
		s := l.Stats()
		return s.Packets == 1 && s.Dropped == 2
	})
	if fps := l.ChannelFPS(1); fps != 50 {
		t.Errorf("ChannelFPS = %v, want 50", fps)
	}
}

func TestHandlePacketRejectsForeignPrefix(t *testing.T) {
	l := NewListener("127.0.0.1:0")
	if err := l.HandlePacket([]byte{0x00, 0x01}); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("HandlePacket() error = %v, want ErrMalformedPacket", err)
	}
}

func TestListenerStopsOnContextCancel(t *testing.T) {
	l := NewListener("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after context cancellation")
	}

	if err := l.Start(context.Background()); !errors.Is(err, ErrListenerClosed) {
		t.Errorf("Start() after close error = %v, want ErrListenerClosed", err)
	}
}
