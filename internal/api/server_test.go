package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/clock"
	"qrng-gateway/internal/pool"
	"qrng-gateway/internal/source"
	testutil "qrng-gateway/testutil"
)

// readyPool builds a pool seeded with alternating bits so block health
// checks pass and the given number of bits is extractable.
func readyPool(t *testing.T, totalBits int) *pool.BitPool {
	t.Helper()

	p := pool.NewBitPoolWithOptions(pool.Options{MinBits: 8, MaxBits: 1 << 20})
	bits := make(bitstream.Sequence, totalBits)
	for i := range bits {
		bits[i] = byte(i % 2)
	}
	if err := p.SendBatch(bits, 1); err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}
	return p
}

func newTestServer(t *testing.T, p *pool.BitPool) *Server {
	t.Helper()

	server, err := NewServer(Options{
		Addr:     "127.0.0.1:0",
		Pool:     p,
		Baseline: source.NewPseudorandom(42),
	})
	if err != nil {
		t.Fatalf("unexpected error creating server: %v", err)
	}
	return server
}

func startServerOrSkip(t *testing.T, server *Server) {
	t.Helper()

	if err := server.Start(); err != nil {
		if isListenPermissionError(err) {
			t.Skipf("skipping HTTP server test: %v", err)
		}
		t.Fatalf("expected Start to succeed, got error: %v", err)
	}
}

func writeSelfSignedCert(t *testing.T) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	certPath := filepath.Join(t.TempDir(), "cert.pem")
	keyPath := filepath.Join(filepath.Dir(certPath), "key.pem")

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("failed to write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	return certPath, keyPath
}

func isListenPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}

func TestEnforceLoopbackAddrAllowsLoopbackHosts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		addr     string
		expected string
	}{
		{"ipv4 loopback", "127.0.0.1:8080", "127.0.0.1:8080"},
		{"localhost", "localhost:9000", "localhost:9000"},
		{"ipv6 loopback", "[::1]:7000", "[::1]:7000"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rez, err := enforceLoopbackAddr(tc.addr, false)
			if err != nil {
				t.Fatalf("expected success, got error: %v", err)
			}
			if rez != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, rez)
			}
		})
	}
}

func TestEnforceLoopbackAddrRejectsUnsafeHosts(t *testing.T) {
	t.Parallel()

	for _, addr := range []string{"0.0.0.0:8080", "192.168.1.10:80", ":9000"} {
		t.Run(addr, func(t *testing.T) {
			t.Parallel()
			if _, err := enforceLoopbackAddr(addr, false); err == nil {
				t.Fatalf("expected error for addr %q", addr)
			}
		})
	}
}

func TestEnforceLoopbackAddrAllowsPublicWhenConfigured(t *testing.T) {
	t.Parallel()

	addr, err := enforceLoopbackAddr("0.0.0.0:8080", true)
	if err != nil {
		t.Fatalf("expected no error when public binding allowed: %v", err)
	}
	if addr != "0.0.0.0:8080" {
		t.Fatalf("expected passthrough address, got %q", addr)
	}

	addr, err = enforceLoopbackAddr("example.com:9000", true)
	if err != nil {
		t.Fatalf("expected hostnames to be allowed when public binding enabled: %v", err)
	}
	if addr != "example.com:9000" {
		t.Fatalf("expected original hostname preserved, got %q", addr)
	}
}

func TestNewServerFailsOnNonLoopback(t *testing.T) {
	t.Parallel()

	if server, err := NewServer(Options{Addr: "192.168.0.5:9797"}); err == nil || server != nil {
		t.Fatalf("expected error for non-loopback address, got server=%v err=%v", server, err)
	}
}

func TestNewServerDefaults(t *testing.T) {
	t.Parallel()

	server, err := NewServer(Options{
		RetryAfterSeconds: -3,
		MaxRequestBits:    0,
		RateLimitRPS:      0,
		RateLimitBurst:    -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if server.server.Addr != defaultHTTPAddress {
		t.Errorf("address = %q, want %q", server.server.Addr, defaultHTTPAddress)
	}
	if server.retryAfterSeconds != defaultRetryAfterSeconds {
		t.Errorf("retryAfterSeconds = %d, want %d", server.retryAfterSeconds, defaultRetryAfterSeconds)
	}
	if server.maxRequestBits != defaultMaxRequestBits {
		t.Errorf("maxRequestBits = %d, want %d", server.maxRequestBits, defaultMaxRequestBits)
	}
	if server.rateLimiter.refillRate != defaultRateLimitRPS {
		t.Errorf("rate limiter rate = %v, want %v", server.rateLimiter.refillRate, float64(defaultRateLimitRPS))
	}
	if server.rateLimiter.capacity != defaultRateLimitBurst {
		t.Errorf("rate limiter burst = %v, want %v", server.rateLimiter.capacity, float64(defaultRateLimitBurst))
	}
}

func TestHandleRandomReturnsAllEncodings(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 1024))

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/random?bits=8", nil)
	rec := httptest.NewRecorder()
	server.handleRandom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}

	var body randomResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	// The pool serves FIFO, so the draw is the alternating seed prefix.
	if body.Bits != 8 {
		t.Errorf("bits = %d, want 8", body.Bits)
	}
	if body.Binary != "01010101" {
		t.Errorf("binary = %q, want %q", body.Binary, "01010101")
	}
	if body.Decimal != "85" {
		t.Errorf("decimal = %q, want %q", body.Decimal, "85")
	}
	if body.Hex != "55" {
		t.Errorf("hex = %q, want %q", body.Hex, "55")
	}
	if want := 85.0 / 256.0; body.Float != want {
		t.Errorf("float = %v, want %v", body.Float, want)
	}
}

func TestHandleAnalysisReportsFullSuite(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 1024))

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/analysis?bits=64", nil)
	rec := httptest.NewRecorder()
	server.handleAnalysis(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}

	var body analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Bits != 64 {
		t.Errorf("bits = %d, want 64", body.Bits)
	}
	// A perfectly balanced draw has maximal entropy and a zero chi-square
	// statistic.
	if body.Descriptive.EntropyRatio != 1.0 {
		t.Errorf("entropy ratio = %v, want 1.0", body.Descriptive.EntropyRatio)
	}
	if body.ChiSquare.Statistic != 0 {
		t.Errorf("chi-square statistic = %v, want 0", body.ChiSquare.Statistic)
	}
	if !body.ChiSquare.Passes {
		t.Error("expected chi-square test to pass for balanced draw")
	}
	if body.Runs == nil {
		t.Fatal("expected runs test result for non-degenerate draw")
	}
	// A strictly alternating draw has the maximum possible number of runs
	// and must be flagged as non-random.
	if body.Runs.Passes {
		t.Error("expected runs test to reject a strictly alternating draw")
	}
	if body.SerialCorrelation == nil {
		t.Fatal("expected serial correlation for non-degenerate draw")
	}
	if *body.SerialCorrelation > -0.9 {
		t.Errorf("serial correlation = %v, want strongly negative", *body.SerialCorrelation)
	}
	if body.Quality != "Excellent" {
		t.Errorf("quality = %q, want Excellent", body.Quality)
	}
}

func TestHandleAnalysisDegenerateDrawOmitsRunsTest(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	// Constant bits survive the block health checks only when the run
	// cutoff exceeds the draw size.
	p := pool.NewBitPoolWithOptions(pool.Options{
		MinBits:          8,
		MaxBits:          1 << 16,
		RepetitionCutoff: 1 << 20,
		ProportionCutoff: 1 << 20,
	})
	if err := p.SendBatch(make(bitstream.Sequence, 256), 1); err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}
	server := newTestServer(t, p)

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/analysis?bits=64", nil)
	rec := httptest.NewRecorder()
	server.handleAnalysis(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}

	var body analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Runs != nil {
		t.Error("expected runs test to be omitted for a single-valued draw")
	}
	if body.SerialCorrelation != nil {
		t.Error("expected serial correlation to be omitted for a single-valued draw")
	}
	if body.Quality != "Poor" {
		t.Errorf("quality = %q, want Poor", body.Quality)
	}
}

func TestHandleCompareReportsBothSides(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 1024))

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/compare?bits=128", nil)
	rec := httptest.NewRecorder()
	server.handleCompare(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}

	var body compareResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Bits != 128 {
		t.Errorf("bits = %d, want 128", body.Bits)
	}
	if body.Comparison.Quantum.Total != 128 {
		t.Errorf("quantum total = %d, want 128", body.Comparison.Quantum.Total)
	}
	if body.Comparison.Classical.Total != 128 {
		t.Errorf("classical total = %d, want 128", body.Comparison.Classical.Total)
	}
	if body.Comparison.QuantumQuality == "" || body.Comparison.ClassicalQuality == "" {
		t.Error("expected quality labels on both sides")
	}
}

func TestHandleCompareWithoutBaseline(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server, err := NewServer(Options{Addr: "127.0.0.1:0", Pool: readyPool(t, 1024)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/compare?bits=32", nil)
	rec := httptest.NewRecorder()
	server.handleCompare(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without baseline source, got %d", rec.Code)
	}
}

func TestHandleDrawBitsValidation(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"zero", "0", http.StatusBadRequest},
		{"negative", "-1", http.StatusBadRequest},
		{"tooLarge", "4097", http.StatusBadRequest},
		{"nonNumeric", "bad", http.StatusBadRequest},
		{"default", "", http.StatusOK},
		{"oneBit", "1", http.StatusOK},
		{"maxBits", "4096", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testutil.ResetRegistryForTest(t)

			server := newTestServer(t, readyPool(t, 8192))

			query := tc.query
			if query != "" {
				query = "?bits=" + query
			}

			req := httptest.NewRequest(http.MethodGet, baseURLV1+"/random"+query, nil)
			rec := httptest.NewRecorder()
			server.handleRandom(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}

			if tc.status == http.StatusOK {
				if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
					t.Fatalf("expected Cache-Control no-store, got %q", cc)
				}
			}
		})
	}
}

func TestHandleDrawRateLimitSetsRetryAfter(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 1024))

	fakeClock := clock.NewFakeClock()
	server.rateLimiter = newTokenBucket(1, 1, fakeClock)

	req1 := httptest.NewRequest(http.MethodGet, baseURLV1+"/random?bits=8", nil)
	rec1 := httptest.NewRecorder()
	server.handleRandom(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got status %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, baseURLV1+"/random?bits=8", nil)
	rec2 := httptest.NewRecorder()
	server.handleRandom(rec2, req2)
	if rec2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected rate limited status, got %d", rec2.Code)
	}
	if got := rec2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After header '1', got %q", got)
	}
}

func TestHandleDrawPoolNotReadySetsRetryAfter(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server, err := NewServer(Options{
		Addr:              "127.0.0.1:0",
		Pool:              pool.NewBitPool(4096),
		Baseline:          source.NewPseudorandom(1),
		RetryAfterSeconds: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server.rateLimiter = nil

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/random?bits=32", nil)
	rec := httptest.NewRecorder()
	server.handleRandom(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After header '5', got %q", got)
	}
}

func TestHandleDrawWithNilPool(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server, err := NewServer(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/random?bits=32", nil)
	rec := httptest.NewRecorder()
	server.handleRandom(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for nil pool, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bit pool unavailable") {
		t.Fatalf("expected pool unavailable message, got: %q", rec.Body.String())
	}
}

func TestHandleHealthReportsPoolState(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 100))

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/health", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	contents := rec.Body.String()
	if !strings.Contains(contents, "batches=1") {
		t.Fatalf("expected batch count, body=%q", contents)
	}
	if !strings.Contains(contents, "stored_bits=100") {
		t.Fatalf("expected stored bits count, body=%q", contents)
	}
	if !strings.Contains(contents, "available_bits=92") {
		t.Fatalf("expected available bits count, body=%q", contents)
	}
}

func TestHandleHealthWithNilPool(t *testing.T) {
	t.Parallel()

	server, err := NewServer(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/health", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK even with nil pool, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stored_bits=0") {
		t.Errorf("expected zero values for nil pool, got: %q", rec.Body.String())
	}
}

func TestHandleReadyReflectsAvailability(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	p := pool.NewBitPoolWithOptions(pool.Options{MinBits: 8, MaxBits: 1 << 16})
	server, err := NewServer(Options{
		Addr:           "127.0.0.1:0",
		Pool:           p,
		Baseline:       source.NewPseudorandom(1),
		ReadyThreshold: 16,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, baseURLV1+"/ready", nil)
	rec := httptest.NewRecorder()
	server.handleReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when below threshold, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "ready=false" {
		t.Fatalf("expected readiness false, got %q", body)
	}

	seed := make(bitstream.Sequence, 64)
	for i := range seed {
		seed[i] = byte(i % 2)
	}
	if err := p.SendBatch(seed, 1); err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}

	rec2 := httptest.NewRecorder()
	server.handleReady(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 when threshold met, got %d", rec2.Code)
	}
	if body := strings.TrimSpace(rec2.Body.String()); body != "ready=true" {
		t.Fatalf("expected readiness true, got %q", body)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	t.Parallel()

	fakeClock := clock.NewFakeClock()
	bucket := newTokenBucket(1, 1, fakeClock)

	if allowed, _ := bucket.Allow(); !allowed {
		t.Fatal("expected first token to be available")
	}
	if allowed, wait := bucket.Allow(); allowed || wait < time.Second {
		t.Fatalf("expected rate limit with at least 1s wait, got allowed=%v wait=%v", allowed, wait)
	}

	fakeClock.Advance(time.Second)
	if allowed, _ := bucket.Allow(); !allowed {
		t.Fatal("expected token to refill after 1s")
	}
}

func TestTokenBucketMultipleRefills(t *testing.T) {
	t.Parallel()

	fakeClock := clock.NewFakeClock()
	bucket := newTokenBucket(2, 5, fakeClock) // 2 tokens/sec, max 5

	for i := 0; i < 5; i++ {
		if allowed, _ := bucket.Allow(); !allowed {
			t.Fatalf("token %d should be available", i+1)
		}
	}

	if allowed, wait := bucket.Allow(); allowed {
		t.Fatal("expected rate limit after consuming all tokens")
	} else if wait < 500*time.Millisecond {
		t.Errorf("expected wait >= 500ms, got %v", wait)
	}

	fakeClock.Advance(time.Second)
	for i := 0; i < 2; i++ {
		if allowed, _ := bucket.Allow(); !allowed {
			t.Fatalf("token %d should be available after 1s refill", i+1)
		}
	}

	fakeClock.Advance(2500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if allowed, _ := bucket.Allow(); !allowed {
			t.Fatalf("token %d should be available after full refill", i+1)
		}
	}

	if allowed, _ := bucket.Allow(); allowed {
		t.Fatal("expected exhaustion after consuming refilled tokens")
	}
}

func TestNewTokenBucketWithInvalidParameters(t *testing.T) {
	fakeClock := clock.NewFakeClock()

	tests := []struct {
		name         string
		rate         float64
		burst        float64
		expectRate   float64
		expectBurst  float64
		expectTokens float64
	}{
		{"zero rate", 0, 10, 1, 10, 10},
		{"negative rate", -5, 10, 1, 10, 10},
		{"zero burst", 10, 0, 10, 10, 10},
		{"both zero", 0, 0, 1, 1, 1},
		{"valid values", 5, 10, 5, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bucket := newTokenBucket(tt.rate, tt.burst, fakeClock)

			if bucket.refillRate != tt.expectRate {
				t.Errorf("refillRate = %v, want %v", bucket.refillRate, tt.expectRate)
			}
			if bucket.capacity != tt.expectBurst {
				t.Errorf("capacity = %v, want %v", bucket.capacity, tt.expectBurst)
			}
			if bucket.tokens != tt.expectTokens {
				t.Errorf("initial tokens = %v, want %v", bucket.tokens, tt.expectTokens)
			}
		})
	}
}

func TestNewTokenBucketWithNilClock(t *testing.T) {
	t.Parallel()

	bucket := newTokenBucket(10, 10, nil)

	if bucket.clock == nil {
		t.Error("expected clock to be set to RealClock when nil provided")
	}
}

func TestSetRetryAfterWithVariousDurations(t *testing.T) {
	tests := []struct {
		name               string
		retryAfterSeconds  int
		waitDuration       time.Duration
		expectedRetryAfter string
	}{
		{"default with zero wait", 1, 0, "1"},
		{"default with short wait", 5, 200 * time.Millisecond, "5"},
		{"wait exceeds default", 1, 3 * time.Second, "3"},
		{"wait rounds up", 2, 2500 * time.Millisecond, "3"},
		{"fractional wait", 1, 1500 * time.Millisecond, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(Options{Addr: "127.0.0.1:0", RetryAfterSeconds: tt.retryAfterSeconds})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			rec := httptest.NewRecorder()
			server.setRetryAfter(rec, tt.waitDuration)

			got := rec.Header().Get("Retry-After")
			if got != tt.expectedRetryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.expectedRetryAfter)
			}
		})
	}
}

func TestServerStartLifecycle(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 1024))

	t.Cleanup(func() {
		_ = server.Shutdown(context.TODO())
	})

	startServerOrSkip(t, server)

	addr := server.listener.Addr().String()
	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to reach health endpoint: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}

	if err := server.Shutdown(context.TODO()); err != nil {
		t.Fatalf("expected Shutdown to succeed, got error: %v", err)
	}
}

func TestServerStartRejectsNilPool(t *testing.T) {
	t.Parallel()

	server, err := NewServer(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := server.Start(); err == nil {
		t.Fatal("expected Start to fail when pool is nil")
	}
}

func TestServerStartTLSAndShutdown(t *testing.T) {
	testutil.ResetRegistryForTest(t)

	server := newTestServer(t, readyPool(t, 64))

	certFile, keyFile := writeSelfSignedCert(t)

	if err := server.StartTLS(certFile, keyFile, certFile, tls.RequireAndVerifyClientCert); err != nil {
		if isListenPermissionError(err) {
			t.Skipf("skipping TLS start due to permission error: %v", err)
		}
		t.Fatalf("StartTLS failed: %v", err)
	}

	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestServerShutdownWhenNotStarted(t *testing.T) {
	t.Parallel()

	server, err := NewServer(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("expected Shutdown of non-started server to succeed, got: %v", err)
	}
}
