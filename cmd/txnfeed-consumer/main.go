// Command txnfeed-consumer runs the txnfeed adapter against a
// configurable backing store and exposes its operational surface: a
// Prometheus /metrics endpoint, a JWT-guarded /debug/subscriptions
// admin endpoint, and a gRPC health service instrumented with
// go-grpc-prometheus interceptors.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	jwt "github.com/golang-jwt/jwt/v5"
	grpcprom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/txnfeed/txnfeed"
	"github.com/txnfeed/txnfeed/backend/sqlite"
	"github.com/txnfeed/txnfeed/config"
	"github.com/txnfeed/txnfeed/metrics"
	"github.com/txnfeed/txnfeed/store"
	"github.com/txnfeed/txnfeed/store/memstore"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("txnfeed-consumer exited with error")
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	var log = logrus.NewEntry(logrus.StandardLogger())
	printBanner(cfg.Backend.Kind)

	backing, err := buildBackingStore(cfg)
	if err != nil {
		return fmt.Errorf("building backing store %s: %w", cfg.Backend.Kind, err)
	}

	var reg = prometheus.NewRegistry()
	var rec = metrics.New(reg, "txnfeed")

	var adapter = txnfeed.New(txnfeed.Options{
		BackingStore: backing,
		CacheSize:    cfg.Adapter.CacheSize,
		PollInterval: cfg.Adapter.PollInterval,
		MaxPageSize:  cfg.Adapter.MaxPageSize,
		Logger:       log,
		Metrics:      rec,
	})

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var admin = newAdminServer(cfg.Admin.JWTSecret, adapter, reg)
	var httpSrv = &http.Server{Addr: cfg.Admin.HTTPAddr, Handler: admin}
	go func() {
		log.WithField("addr", cfg.Admin.HTTPAddr).Info("admin http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("admin http server failed")
		}
	}()

	grpcSrv, err := startHealthServer(cfg.Admin.GRPCAddr, log, reg)
	if err != nil {
		return fmt.Errorf("starting gRPC health server: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	grpcSrv.GracefulStop()
	_ = httpSrv.Shutdown(context.Background())
	return adapter.Dispose(context.Background())
}

// buildBackingStore selects and constructs the configured
// store.BackingStore. Only "mem" and "sqlite" are built here; "etcd" and
// "gazette" need a pre-built client and return an error from this
// function.
func buildBackingStore(cfg *config.Config) (store.BackingStore, error) {
	switch cfg.Backend.Kind {
	case "mem":
		return memstore.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.Backend.SQLitePath)
	case "etcd":
		// etcd.New wraps a pre-dialed *clientv3.Client; dialing it here
		// would hide cluster-auth/TLS configuration this binary doesn't
		// otherwise own. Deployments running this backend should fork
		// this constructor to pass in their own client.
		return nil, fmt.Errorf("etcd backend requires a pre-dialed client; see backend/etcd.New")
	case "gazette":
		return nil, fmt.Errorf("gazette backend requires a routed journal client; see backend/gazette.New")
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

func printBanner(backend string) {
	var banner = color.New(color.FgCyan, color.Bold)
	banner.Println("txnfeed-consumer")
	color.New(color.Faint).Printf("backend: %s\n", backend)
}

// startHealthServer exposes grpc_health_v1.Health over addr, wrapped in
// go-grpc-prometheus interceptors so RPC counts/latencies land on the
// same registry as the adapter's own metrics.
func startHealthServer(addr string, log *logrus.Entry, reg prometheus.Registerer) (*grpc.Server, error) {
	lis, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	var srv = grpc.NewServer(
		grpc.UnaryInterceptor(grpcprom.UnaryServerInterceptor),
		grpc.StreamInterceptor(grpcprom.StreamServerInterceptor),
	)
	var healthSrv = health.NewServer()
	healthSrv.SetServingStatus("txnfeed", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)
	grpcprom.Register(srv)
	reg.MustRegister(grpcprom.DefaultServerMetrics)

	go func() {
		log.WithField("addr", addr).Info("grpc health server listening")
		if err := srv.Serve(lis); err != nil {
			log.WithError(err).Error("grpc health server stopped")
		}
	}()
	return srv, nil
}

// adminServer serves /metrics openly and /debug/subscriptions behind a
// bearer JWT, signed with HS256 over jwtSecret. An empty secret disables
// auth entirely (local development only).
type adminServer struct {
	mux       *http.ServeMux
	jwtSecret string
	adapter   *txnfeed.Adapter
}

func newAdminServer(jwtSecret string, adapter *txnfeed.Adapter, reg *prometheus.Registry) *adminServer {
	var s = &adminServer{mux: http.NewServeMux(), jwtSecret: jwtSecret, adapter: adapter}
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux.Handle("/debug/subscriptions", s.requireAuth(http.HandlerFunc(s.handleSubscriptions)))
	return s
}

func (s *adminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *adminServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		var header = r.Header.Get("Authorization")
		var token = strings.TrimPrefix(header, "Bearer ")
		if token == header {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return []byte(s.jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleSubscriptions reports a minimal liveness summary. The adapter
// does not expose per-subscription detail beyond its own bookkeeping, so
// this endpoint exists mainly as the vehicle for the JWT middleware.
func (s *adminServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}
