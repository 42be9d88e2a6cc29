// Package server accepts TCP connections and serves one session per client
// over the newline-delimited JSON protocol.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/cache"
)

// Server owns the listener and the bounded pool of session workers. When
// the pool is full, Accept backpressure applies: new connections wait in
// the kernel backlog until a slot frees up.
type Server struct {
	addr            string
	maxClients      int
	requestsPerSec  int
	shutdownTimeout time.Duration

	booker  Booker
	auth    Authenticator
	store   CatalogStore
	catalog *cache.Catalog

	mu        sync.Mutex
	boundAddr net.Addr

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// Addr returns the bound listener address, or nil before ListenAndServe.
// Useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Options configures a Server.
type Options struct {
	Addr            string
	MaxClients      int
	RequestsPerSec  int
	ShutdownTimeout time.Duration
}

// New constructs a server. catalog may be nil to disable caching.
func New(opts Options, booker Booker, authn Authenticator, store CatalogStore, catalog *cache.Catalog, logger *zerolog.Logger) *Server {
	return &Server{
		addr:            opts.Addr,
		maxClients:      opts.MaxClients,
		requestsPerSec:  opts.RequestsPerSec,
		shutdownTimeout: opts.ShutdownTimeout,
		booker:          booker,
		auth:            authn,
		store:           store,
		catalog:         catalog,
		logger:          logger.With().Str("component", "server").Logger(),
	}
}

// ListenAndServe accepts clients until ctx is cancelled, then waits for
// in-flight sessions to finish, bounded by the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.boundAddr = ln.Addr()
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Int("max_clients", s.maxClients).Msg("listening")

	sem := make(chan struct{}, s.maxClients)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-sem }()
			sess := newSession(conn, s.booker, s.auth, s.store, s.catalog, s.requestsPerSec, &s.logger)
			sess.run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("all sessions closed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("shutdown timeout; abandoning remaining sessions")
	}
	return nil
}
