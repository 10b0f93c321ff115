package inway

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/rpc"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
	"github.com/nlx-io/nlx-gateway/internal/rpctest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcaster_DoesNotAnnounceBeforeConfigObserved(t *testing.T) {
	cert, leaf := rpctest.NewCert(t)
	tlsCfg := rpctest.ClientTLSConfig(leaf)

	var registerInwayCalls int32
	mgmtAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		return map[string]any{}, nil
	})
	dirAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		if call.Method == "/nlx.directory.Directory/RegisterInway" {
			atomic.AddInt32(&registerInwayCalls, 1)
		}
		return map[string]any{}, nil
	})

	mgmtConn, err := rpc.Dial(mgmtAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial management: %v", err)
	}
	defer mgmtConn.Close()
	dirConn, err := rpc.Dial(dirAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial directory: %v", err)
	}
	defer dirConn.Close()

	bus := broadcast.New[model.InwayConfig](4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	b := &Broadcaster{
		Name:             "inway-1",
		Version:          "v-test",
		SelfAddress:      "https://inway.example.org/",
		Management:       management.New(mgmtConn),
		Directory:        directory.New(dirConn),
		Sub:              sub,
		Metrics:          metrics.New(),
		Logger:           discardLogger(),
		announceInterval: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// Never publish on the subscription: the announce ticker should fire
	// several times (150ms / 20ms) with haveConfig still false throughout.
	if err := b.runOnce(ctx); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if got := atomic.LoadInt32(&registerInwayCalls); got != 0 {
		t.Fatalf("directory RegisterInway called %d times before any config was observed, want 0", got)
	}
}

func TestBroadcaster_AnnouncesAfterConfigObserved(t *testing.T) {
	cert, leaf := rpctest.NewCert(t)
	tlsCfg := rpctest.ClientTLSConfig(leaf)

	var registerInwayCalls int32
	mgmtAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		return map[string]any{}, nil
	})
	dirAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		if call.Method == "/nlx.directory.Directory/RegisterInway" {
			atomic.AddInt32(&registerInwayCalls, 1)
		}
		return map[string]any{}, nil
	})

	mgmtConn, err := rpc.Dial(mgmtAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial management: %v", err)
	}
	defer mgmtConn.Close()
	dirConn, err := rpc.Dial(dirAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial directory: %v", err)
	}
	defer dirConn.Close()

	bus := broadcast.New[model.InwayConfig](4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	b := &Broadcaster{
		Name:             "inway-1",
		Version:          "v-test",
		SelfAddress:      "https://inway.example.org/",
		Management:       management.New(mgmtConn),
		Directory:        directory.New(dirConn),
		Sub:              sub,
		Metrics:          metrics.New(),
		Logger:           discardLogger(),
		announceInterval: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	bus.Publish(model.InwayConfig{Services: map[string]model.InwayService{}})

	if err := b.runOnce(ctx); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if got := atomic.LoadInt32(&registerInwayCalls); got == 0 {
		t.Fatal("directory RegisterInway was never called after a configuration event was observed")
	}
}
