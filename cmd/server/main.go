// Command server wires the store, model caller, Run Executor and RPC
// surface together into the agent orchestration engine's HTTP service
// (spec §6). It reads its entire configuration from the environment
// (config.Load) and never accepts command-line flags, mirroring the
// teacher's env-driven service wiring.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-agent-go/config"
	"trpc.group/trpc-go/trpc-agent-go/engine"
	"trpc.group/trpc-go/trpc-agent-go/internal/xlog"
	"trpc.group/trpc-go/trpc-agent-go/modelcaller"
	"trpc.group/trpc-go/trpc-agent-go/rpc"
	"trpc.group/trpc-go/trpc-agent-go/store"
	"trpc.group/trpc-go/trpc-agent-go/store/memory"
	"trpc.group/trpc-go/trpc-agent-go/store/mongo"
	"trpc.group/trpc-go/trpc-agent-go/store/sqlite"
)

func main() {
	cfg := config.Load()
	xlog.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openStore(ctx, cfg)
	if err != nil {
		xlog.Errorf("server: open store: %v", err)
		os.Exit(1)
	}
	defer s.Close(ctx)

	caller := modelcaller.New()
	eng := engine.New(
		s,
		caller,
		cfg.ModelName,
		engine.RoutingPolicy{MaxDepth: cfg.MaxDepth, MaxChildren: cfg.MaxChildren},
		cfg.RouterIndexLimit,
		cfg.SpecialistIndexLimit,
		cfg.MainRouterSlug,
		cfg.MainRouterName,
	)
	srv := rpc.New(s, eng)

	// Bound the number of root runs executing concurrently (spec §5
	// "parallelism across roots"): each root run blocks its goroutine for
	// the entire recursive tree, so without a bound every concurrent
	// request would execute at once.
	pool, err := ants.NewPool(cfg.MaxConcurrentRuns)
	if err != nil {
		xlog.Errorf("server: create run pool: %v", err)
		os.Exit(1)
	}
	defer pool.Release()

	handler := boundedHandler(pool, srv.Router())

	httpSrv := &http.Server{
		Addr:    net.JoinHostPort("", portString(cfg.Port)),
		Handler: handler,
	}

	go func() {
		xlog.Infof("server: listening on :%d (store=%s, model-provider=%s)", cfg.Port, cfg.StoreDriver, caller.ProviderName())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			xlog.Errorf("server: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// openStore selects the store driver named by cfg.StoreDriver (spec §6
// "STORE_DRIVER"), defaulting to the in-memory store for local use.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		return sqlite.Open(cfg.StoreURI)
	case "mongo":
		return mongo.Open(ctx, mongo.WithURI(cfg.StoreURI), mongo.WithDatabase(cfg.StoreDatabase))
	default:
		return memory.New(), nil
	}
}

// boundedHandler submits each request to a bounded goroutine pool and waits
// for it; net/http's own per-connection goroutine blocks here until a pool
// slot is free. run.start's whole recursive tree executes inline on the
// pool goroutine (spec §4.6), so the pool size is the real concurrency
// bound on root runs.
func boundedHandler(pool *ants.Pool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := make(chan struct{})
		err := pool.Submit(func() {
			defer close(done)
			next.ServeHTTP(w, r)
		})
		if err != nil {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		<-done
	})
}

func portString(port int) string {
	return strconv.Itoa(port)
}
