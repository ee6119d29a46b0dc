package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	gogrpc "google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/agentopoly/internal/platform/grpc"
	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// Serve listens on addr and hosts gateway until ctx ends.
func Serve(ctx context.Context, addr string, gateway ledger.Gateway) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, listener, gateway)
}

// ServeListener hosts gateway on listener until ctx ends. Open watch streams
// get timeouts.Shutdown to drain before the server is stopped hard.
func ServeListener(ctx context.Context, listener net.Listener, gateway ledger.Gateway) error {
	if gateway == nil {
		_ = listener.Close()
		return errors.New("ledger gateway is required")
	}
	grpcServer, healthServer := platformgrpc.NewServer(ServiceName)
	NewServer(gateway).Register(grpcServer)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("ledger gRPC listening at %v", listener.Addr())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
			return fmt.Errorf("serve ledger gRPC: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			log.Printf("ledger gRPC: graceful stop timed out, closing streams")
			grpcServer.Stop()
		}
		return nil
	})
	return group.Wait()
}
