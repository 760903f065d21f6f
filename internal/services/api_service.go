package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// APIService serves the Status API over HTTP.
type APIService struct {
	address           string
	handler           http.Handler
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	enableH2C         bool
	logger            zerolog.Logger

	mu         sync.Mutex
	server     *http.Server
	listener   net.Listener
	done       chan struct{}
	onShutdown []func()
}

// NewAPIService initializes a new APIService bound to address.
func NewAPIService(address string, handler http.Handler, readHeaderTimeout, shutdownTimeout time.Duration,
	enableH2C bool, logger zerolog.Logger) *APIService {

	return &APIService{
		address:           address,
		handler:           handler,
		readHeaderTimeout: readHeaderTimeout,
		shutdownTimeout:   shutdownTimeout,
		enableH2C:         enableH2C,
		logger:            logger,
	}
}

// Start binds the listener and serves in the background. Bind errors are returned.
func (a *APIService) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return errors.New("api service is already running")
	}

	listener, err := net.Listen("tcp", a.address)
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", a.address, err)
	}

	handler := a.handler
	if a.enableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: a.readHeaderTimeout,
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Status API server stopped unexpectedly")
		}
	}()

	a.server = server
	a.listener = listener
	a.done = done

	a.logger.Info().Str("address", listener.Addr().String()).Bool("h2c", a.enableH2C).Msg("Status API listening")
	return nil
}

// OnShutdown registers fn to run when Stop begins. Connections hijacked from the
// server, such as heartbeat streams, are not closed by Shutdown and must be ended here.
func (a *APIService) OnShutdown(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onShutdown = append(a.onShutdown, fn)
}

// Stop shuts the server down, waiting up to the shutdown timeout for in-flight requests.
func (a *APIService) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return errors.New("api service is not running")
	}

	for _, fn := range a.onShutdown {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Graceful shutdown timed out, closing connections")
		err = errors.Join(err, a.server.Close())
	}
	<-a.done

	a.server = nil
	a.listener = nil
	a.logger.Info().Msg("Status API stopped")
	return err
}

// Addr returns the bound address, or nil when the service is not running.
func (a *APIService) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}
