package routing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/routing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInwayTable_LookupBeforeAnyPublish(t *testing.T) {
	tbl := routing.NewInwayTable(discardLogger())
	if _, ok := tbl.Lookup("orders-api"); ok {
		t.Fatal("expected no route before any snapshot is applied")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
}

func TestInwayTable_RunAppliesPublishedSnapshot(t *testing.T) {
	tbl := routing.NewInwayTable(discardLogger())
	bus := broadcast.New[model.InwayConfig](4)
	sub := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tbl.Run(ctx, sub, nil)
		close(done)
	}()

	bus.Publish(model.InwayConfig{Services: map[string]model.InwayService{
		"orders-api": {Name: "orders-api", EndpointURL: "http://backend/"},
	}})

	waitFor(t, func() bool {
		_, ok := tbl.Lookup("orders-api")
		return ok
	})

	svc, ok := tbl.Lookup("orders-api")
	if !ok || svc.EndpointURL != "http://backend/" {
		t.Fatalf("got %+v, ok=%v", svc, ok)
	}

	cancel()
	<-done
}

func TestOutwayTable_LookupFirstInway(t *testing.T) {
	tbl := routing.NewOutwayTable(discardLogger())
	bus := broadcast.New[model.OutwayConfig](4)
	sub := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tbl.Run(ctx, sub, nil)
		close(done)
	}()

	svc := model.DirectoryService{
		Name: "orders-api",
		Inways: []model.DirectoryInway{
			{Address: "https://inway-a.example.org/", State: model.DirectoryInwayUp},
			{Address: "https://inway-b.example.org/", State: model.DirectoryInwayUp},
		},
	}
	bus.Publish(model.OutwayConfig{Services: map[string][]model.DirectoryService{"00000001": {svc}}})

	waitFor(t, func() bool {
		_, ok := tbl.Lookup("00000001", "orders-api")
		return ok
	})

	resolved, ok := tbl.Lookup("00000001", "orders-api")
	if !ok {
		t.Fatal("expected a resolved route")
	}
	if resolved.InwayAddress != "https://inway-a.example.org/" {
		t.Fatalf("selected %q, want the first advertised inway", resolved.InwayAddress)
	}
	if tbl.OrganizationCount() != 1 {
		t.Fatalf("OrganizationCount() = %d, want 1", tbl.OrganizationCount())
	}

	cancel()
	<-done
}

func TestOutwayTable_LookupUnknownOrganization(t *testing.T) {
	tbl := routing.NewOutwayTable(discardLogger())
	if _, ok := tbl.Lookup("nonexistent", "orders-api"); ok {
		t.Fatal("expected no route for unknown organization")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
