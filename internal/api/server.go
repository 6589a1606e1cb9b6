// Package api exposes the gateway's random bit draws and statistical
// analysis results over a local HTTP interface, serving JSON records that
// downstream tooling can consume directly.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"qrng-gateway/internal/analysis"
	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/clock"
	"qrng-gateway/internal/metrics"
	"qrng-gateway/internal/pool"
	"qrng-gateway/internal/source"
	"qrng-gateway/internal/validation"

	"github.com/AmmannChristian/go-authx/httpserver"
)

const (
	defaultHTTPAddress       = "127.0.0.1:9797"
	defaultRequestBits       = 256
	minRequestBits           = 1
	defaultMaxRequestBits    = 4096
	defaultShutdownTimeout   = 5 * time.Second
	defaultIdleTimeout       = 30 * time.Second
	defaultReadWriteTimeout  = 5 * time.Second
	defaultRateLimitRPS      = 25
	defaultRateLimitBurst    = 25
	defaultRetryAfterSeconds = 1
	baseURLV1                = "/api/v1"
)

// Options bundles the dependencies and tunables of the analysis API server.
type Options struct {
	Addr              string
	Pool              *pool.BitPool
	Baseline          source.Source
	ReadyThreshold    int
	AllowPublic       bool
	RetryAfterSeconds int
	MaxRequestBits    int
	RateLimitRPS      int
	RateLimitBurst    int
}

// Server exposes quantum bit draws and their statistical validation over a
// local HTTP interface. Endpoints:
//   - GET /api/v1/random?bits=N   -- draws N bits and returns every encoding
//   - GET /api/v1/analysis?bits=N -- draws N bits and returns the full
//     descriptive and hypothesis test report
//   - GET /api/v1/compare?bits=N  -- draws N quantum bits, generates N
//     classical baseline bits, and returns the side-by-side comparison
//   - GET /api/v1/health          -- pool status as plain text
//   - GET /api/v1/ready           -- 200 when the pool reserve is met
//
// Token-bucket rate limiting is applied to the draw endpoints.
type Server struct {
	pool              *pool.BitPool
	baseline          source.Source
	server            *http.Server
	listener          net.Listener
	shutdownTimeout   time.Duration
	readyThreshold    int
	maxRequestBits    int
	clock             clock.Clock
	rateLimiter       *tokenBucket
	retryAfterSeconds int
}

// NewServer constructs a Server bound to opts.Addr, which defaults to
// 127.0.0.1:9797. Unless opts.AllowPublic is true, the address is restricted
// to loopback interfaces.
func NewServer(opts Options) (*Server, error) {
	if opts.Addr == "" {
		opts.Addr = defaultHTTPAddress
	}
	if opts.ReadyThreshold < 0 {
		opts.ReadyThreshold = 0
	}
	if opts.RetryAfterSeconds <= 0 {
		opts.RetryAfterSeconds = defaultRetryAfterSeconds
	}
	if opts.MaxRequestBits <= 0 {
		opts.MaxRequestBits = defaultMaxRequestBits
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = defaultRateLimitRPS
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}

	canonicalAddr, err := enforceLoopbackAddr(opts.Addr, opts.AllowPublic)
	if err != nil {
		return nil, err
	}

	clk := clock.RealClock{}

	srv := &Server{
		pool:              opts.Pool,
		baseline:          opts.Baseline,
		shutdownTimeout:   defaultShutdownTimeout,
		readyThreshold:    opts.ReadyThreshold,
		maxRequestBits:    opts.MaxRequestBits,
		clock:             clk,
		retryAfterSeconds: opts.RetryAfterSeconds,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(baseURLV1+"/random", srv.handleRandom)
	mux.HandleFunc(baseURLV1+"/analysis", srv.handleAnalysis)
	mux.HandleFunc(baseURLV1+"/compare", srv.handleCompare)
	mux.HandleFunc(baseURLV1+"/health", srv.handleHealth)
	mux.HandleFunc(baseURLV1+"/ready", srv.handleReady)

	srv.server = &http.Server{
		Addr:         canonicalAddr,
		Handler:      mux,
		ReadTimeout:  defaultReadWriteTimeout,
		WriteTimeout: defaultReadWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	srv.rateLimiter = newTokenBucket(float64(opts.RateLimitRPS), float64(opts.RateLimitBurst), clk)
	log.Printf("api: rate limiter configured (rps=%d, burst=%d)", opts.RateLimitRPS, opts.RateLimitBurst)

	return srv, nil
}

// Start begins listening for HTTP requests. It returns an error if the socket
// cannot be bound.
func (s *Server) Start() error {
	if s.pool == nil {
		return errors.New("api: pool is nil")
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api: listen: %w", err)
	}

	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api: serve error: %v", err)
		}
	}()

	log.Printf("api: listening on %s", listener.Addr())
	return nil
}

// StartTLS begins listening for HTTPS requests with TLS or mutual TLS
// support. caFile, when non-empty, provides a CA certificate for client
// verification.
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	if s.pool == nil {
		return errors.New("api: pool is nil")
	}

	tlsConfig := &httpserver.TLSConfig{
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     caFile,
		ClientAuth: clientAuth,
	}

	if err := httpserver.ConfigureServer(s.server, tlsConfig); err != nil {
		return fmt.Errorf("api: configure TLS: %w", err)
	}

	log.Printf("api: loaded server certificate from %s", certFile)
	if caFile != "" {
		log.Printf("api: using custom CA certificate from %s for client verification", caFile)
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api: listen: %w", err)
	}

	tlsListener := tls.NewListener(listener, s.server.TLSConfig)
	s.listener = tlsListener

	go func() {
		if err := s.server.Serve(tlsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api: serve error: %v", err)
		}
	}()

	log.Printf("api: listening on %s (TLS enabled)", listener.Addr())
	return nil
}

// enforceLoopbackAddr validates that addr resolves to a loopback interface.
// When allowPublic is true, non-loopback addresses are permitted with a
// warning log. Returns the canonical host:port string or an error.
func enforceLoopbackAddr(addr string, allowPublic bool) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = defaultHTTPAddress
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("api: invalid address %q: %w", addr, err)
	}

	if host == "" {
		return "", errors.New("api: host must be specified")
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" {
		return net.JoinHostPort("localhost", port), nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if allowPublic {
			log.Printf("api: ALLOW_PUBLIC_HTTP=true,binding to %s", addr)
			return addr, nil
		}
		return "", fmt.Errorf("api: host %q is not loopback", host)
	}

	if !ip.IsLoopback() {
		if allowPublic {
			log.Printf("api: ALLOW_PUBLIC_HTTP=true,binding to %s", addr)
			return net.JoinHostPort(ip.String(), port), nil
		}
		return "", fmt.Errorf("api: host %q must be loopback", host)
	}

	return net.JoinHostPort(ip.String(), port), nil
}

// Shutdown gracefully stops the HTTP server, waiting up to shutdownTimeout
// for in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
	}

	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// randomResponse carries one draw rendered in every supported encoding.
type randomResponse struct {
	Bits    int     `json:"bits"`
	Binary  string  `json:"binary"`
	Decimal string  `json:"decimal"`
	Hex     string  `json:"hex"`
	Float   float64 `json:"float"`
}

// analysisResponse is the full statistical report for one draw.
type analysisResponse struct {
	Bits              int                        `json:"bits"`
	Descriptive       analysis.DescriptiveStats  `json:"descriptive"`
	ChiSquare         validation.ChiSquareResult `json:"chi_square"`
	Runs              *validation.RunsResult     `json:"runs,omitempty"`
	SerialCorrelation *float64                   `json:"serial_correlation,omitempty"`
	Quality           analysis.QualityLabel      `json:"quality"`
}

// compareResponse sets the quantum draw against the classical baseline.
type compareResponse struct {
	Bits       int                 `json:"bits"`
	Comparison analysis.Comparison `json:"comparison"`
}

func (s *Server) handleRandom(response http.ResponseWriter, request *http.Request) {
	s.handleDraw(response, request, func(bits bitstream.Sequence) (any, error) {
		binary, err := bits.BinaryString()
		if err != nil {
			return nil, err
		}
		decimal, err := bits.Decimal()
		if err != nil {
			return nil, err
		}
		hexText, err := bits.Hex()
		if err != nil {
			return nil, err
		}
		floatValue, err := bits.Float()
		if err != nil {
			return nil, err
		}

		return randomResponse{
			Bits:    len(bits),
			Binary:  binary,
			Decimal: decimal.String(),
			Hex:     hexText,
			Float:   floatValue,
		}, nil
	})
}

func (s *Server) handleAnalysis(response http.ResponseWriter, request *http.Request) {
	s.handleDraw(response, request, func(bits bitstream.Sequence) (any, error) {
		report, err := buildAnalysis(bits)
		if err != nil {
			return nil, err
		}
		return report, nil
	})
}

func (s *Server) handleCompare(response http.ResponseWriter, request *http.Request) {
	s.handleDraw(response, request, func(bits bitstream.Sequence) (any, error) {
		if s.baseline == nil {
			return nil, errors.New("api: baseline source unavailable")
		}

		classicalBits, err := s.baseline.Draw(request.Context(), len(bits))
		if err != nil {
			return nil, fmt.Errorf("api: baseline draw: %w", err)
		}

		comparison, err := analysis.Compare(bits, classicalBits)
		if err != nil {
			return nil, err
		}

		return compareResponse{
			Bits:       len(bits),
			Comparison: comparison,
		}, nil
	})
}

// buildAnalysis runs the full validation suite on a drawn sequence and
// records the test verdict metrics.
func buildAnalysis(bits bitstream.Sequence) (*analysisResponse, error) {
	stats, err := analysis.Describe(bits)
	if err != nil {
		return nil, err
	}

	chiSquare, err := validation.ChiSquareTest(bits, 0.5)
	if err != nil {
		return nil, err
	}
	metrics.RecordTestVerdict("chi_square", chiSquare.Passes)

	report := &analysisResponse{
		Bits:        len(bits),
		Descriptive: stats,
		ChiSquare:   chiSquare,
		Quality:     stats.Quality(),
	}

	// Degenerate draws (all zeros or all ones) cannot be scored by the
	// runs test or serial correlation; the report carries what it can.
	if runs, err := validation.RunsTest(bits); err == nil {
		metrics.RecordTestVerdict("runs", runs.Passes)
		report.Runs = &runs
	} else if !errors.Is(err, validation.ErrDegenerateInput) {
		return nil, err
	}

	if corr, err := analysis.SerialCorrelation(bits, 1); err == nil {
		report.SerialCorrelation = &corr
	} else if !errors.Is(err, validation.ErrDegenerateInput) {
		return nil, err
	}

	return report, nil
}

// handleDraw implements the shared draw-then-render flow of the random,
// analysis, and compare endpoints: parameter parsing, rate limiting, pool
// extraction, and JSON encoding.
func (s *Server) handleDraw(response http.ResponseWriter, request *http.Request, render func(bitstream.Sequence) (any, error)) {
	start := time.Now()
	status := http.StatusOK
	rateLimited := false
	defer func() {
		duration := time.Since(start)
		metrics.RecordAPIRequest(status, duration)
		if status == http.StatusServiceUnavailable {
			metrics.RecordAPI503()
			if rateLimited {
				metrics.RecordAPIRateLimited()
			}
		}
	}()

	requestBits := defaultRequestBits
	if value := request.URL.Query().Get("bits"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			status = http.StatusBadRequest
			response.Header().Set("Cache-Control", "no-store")
			http.Error(response, "invalid bits parameter", http.StatusBadRequest)
			return
		}
		requestBits = parsed
	}

	if requestBits < minRequestBits || requestBits > s.maxRequestBits {
		status = http.StatusBadRequest
		response.Header().Set("Cache-Control", "no-store")
		http.Error(response, fmt.Sprintf("bits must be between %d and %d", minRequestBits, s.maxRequestBits), http.StatusBadRequest)
		return
	}

	if s.rateLimiter != nil {
		allowed, wait := s.rateLimiter.Allow()
		if !allowed {
			status = http.StatusServiceUnavailable
			rateLimited = true
			setNoStoreHeaders(response)
			s.setRetryAfter(response, wait)
			http.Error(response, "rate limit exceeded", http.StatusServiceUnavailable)
			return
		}
	}

	available := 0
	if s.pool != nil {
		available = s.pool.Available()
	}

	setNoStoreHeaders(response)
	response.Header().Set("X-Bits-Available", strconv.Itoa(available))
	response.Header().Set("X-Bits-Request", strconv.Itoa(requestBits))

	if s.pool == nil {
		status = http.StatusServiceUnavailable
		s.setRetryAfter(response, 0)
		http.Error(response, "bit pool unavailable", http.StatusServiceUnavailable)
		return
	}

	bits, err := s.pool.Extract(requestBits)
	if err != nil {
		status = http.StatusServiceUnavailable
		s.setRetryAfter(response, 0)
		http.Error(response, fmt.Sprintf("draw failed: requested %d, available %d: %v", requestBits, available, err), http.StatusServiceUnavailable)
		return
	}

	body, err := render(bits)
	if err != nil {
		status = http.StatusInternalServerError
		http.Error(response, err.Error(), http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(response).Encode(body); err != nil {
		log.Printf("api: write failed: %v", err)
	}
}

func (s *Server) handleHealth(response http.ResponseWriter, _ *http.Request) {
	var batches uint64
	stored := 0
	available := 0
	if s.pool != nil {
		batches, stored = s.pool.Status()
		available = s.pool.Available()
	}

	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(response, "batches=%d\nstored_bits=%d\navailable_bits=%d\n", batches, stored, available)
}

func (s *Server) handleReady(response http.ResponseWriter, _ *http.Request) {
	available := 0
	if s.pool != nil {
		available = s.pool.Available()
	}

	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.Header().Set("X-Bits-Available", strconv.Itoa(available))
	response.Header().Set("X-Ready-Threshold", strconv.Itoa(s.readyThreshold))

	if available < s.readyThreshold {
		response.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(response, "ready=false\n")
		return
	}

	response.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(response, "ready=true\n")
}

// setNoStoreHeaders sets Cache-Control and Pragma headers to prevent caching
// of draw responses.
func setNoStoreHeaders(response http.ResponseWriter) {
	response.Header().Set("Cache-Control", "no-store")
	response.Header().Set("Pragma", "no-cache")
}

// tokenBucket implements a simple token-bucket rate limiter. Tokens are
// refilled at a constant rate up to a maximum capacity. It is safe for
// concurrent use.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	clock      clock.Clock
}

// newTokenBucket creates a token bucket that refills at rate tokens per
// second with a maximum burst capacity. The bucket starts full.
func newTokenBucket(rate float64, burst float64, clk clock.Clock) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = rate
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &tokenBucket{
		capacity:   burst,
		tokens:     burst,
		refillRate: rate,
		lastRefill: clk.Now(),
		clock:      clk,
	}
}

func (b *tokenBucket) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		refill := elapsed.Seconds() * b.refillRate

		if refill > 0 {
			b.tokens = math.Min(b.capacity, b.tokens+refill)
		}

		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0

		return true, 0
	}

	deficit := 1.0 - b.tokens
	if deficit < 0 {
		deficit = 0
	}

	waitSeconds := deficit / b.refillRate
	if waitSeconds < 0 {
		waitSeconds = 0
	}

	waitDuration := time.Duration(waitSeconds * float64(time.Second))
	if waitDuration < time.Second {
		waitDuration = time.Second
	}

	return false, waitDuration
}

func (s *Server) setRetryAfter(response http.ResponseWriter, wait time.Duration) {
	seconds := s.retryAfterSeconds
	if wait > 0 {
		calc := int(math.Ceil(wait.Seconds()))
		if calc > seconds {
			seconds = calc
		}
	}
	if seconds < 1 {
		seconds = defaultRetryAfterSeconds
	}
	response.Header().Set("Retry-After", strconv.Itoa(seconds))
}
