package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrng-gateway/internal/api"
	"qrng-gateway/internal/collector"
	qrngconfig "qrng-gateway/internal/config"
	"qrng-gateway/internal/metrics"
	qrngmqtt "qrng-gateway/internal/mqtt"
	"qrng-gateway/internal/pool"
	"qrng-gateway/internal/source"

	"github.com/joho/godotenv"
)

var (
	loadConfigFunc          = loadConfig
	setupBatchCollectorFunc = setupBatchCollector
	setupMQTTFunc           = setupMQTT
	connectMQTTFunc         = connectMQTTWithRetry
	waitForShutdownFunc     = waitForShutdown
	newAPIServerFunc        = func(opts api.Options) (apiServer, error) {
		return api.NewServer(opts)
	}
	newMetricsServerFunc = func(addr string) metricsServer {
		return metrics.NewServer(addr)
	}
	qrngconfigLoadFunc = qrngconfig.Load
)

var (
	newMQTTClient = func(cfg qrngmqtt.Config, handler qrngmqtt.Handler) (mqttClient, error) {
		return qrngmqtt.NewClient(cfg, handler)
	}
	signalNotifyFunc = signal.Notify
	logFatalfFunc    = log.Fatalf
)

type apiServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type metricsServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type mqttClient interface {
	Connect() error
	Close()
}

// parseClientAuth maps a configuration string to the corresponding
// tls.ClientAuthType. Unrecognised values default to tls.NoClientCert.
func parseClientAuth(mode string) tls.ClientAuthType {
	switch mode {
	case "require":
		return tls.RequireAndVerifyClientCert
	case "request":
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if err := godotenv.Overload(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}

	fs := flag.NewFlagSet("qrng-gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stdout, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "parse flags: %v\n", err)
		return 2
	}

	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return 2
	}

	config, err := loadConfigFunc()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	if config.Metrics.Enabled {
		metricsSrv := newMetricsServerFunc(config.Metrics.Bind)
		go func() {
			var err error
			if config.Metrics.TLSEnabled {
				clientAuth := parseClientAuth(config.Metrics.TLSClientAuth)
				err = metricsSrv.StartTLS(
					config.Metrics.TLSCertFile,
					config.Metrics.TLSKeyFile,
					config.Metrics.TLSCAFile,
					clientAuth,
				)
			} else {
				err = metricsSrv.Start()
			}
			if err != nil {
				logFatalfFunc("metrics: failed to start server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics: shutdown error: %v", err)
			}
		}()
	}

	bitPool := pool.NewBitPoolWithOptions(pool.Options{
		MinBits:          config.BitPool.PoolMinBits,
		MaxBits:          config.BitPool.PoolMaxBits,
		RepetitionCutoff: config.BitPool.RepetitionCutoff,
		ProportionCutoff: config.BitPool.ProportionCutoff,
		ProportionWindow: config.BitPool.ProportionWindow,
	})

	if err := validateAPIAddr(config.API.Bind, config.API.AllowPublic); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	apiSrv, err := newAPIServerFunc(api.Options{
		Addr:              config.API.Bind,
		Pool:              bitPool,
		Baseline:          newBaselineSource(config.Baseline),
		ReadyThreshold:    config.BitPool.ReadyMinBits,
		AllowPublic:       config.API.AllowPublic,
		RetryAfterSeconds: config.API.RetryAfterSec,
		MaxRequestBits:    config.API.MaxRequestBits,
		RateLimitRPS:      config.API.RateLimitRPS,
		RateLimitBurst:    config.API.RateLimitBurst,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "start api server: %v\n", err)
		return 1
	}

	if apiSrv == nil {
		_, _ = fmt.Fprintln(stderr, "start api server: initialization failed")
		return 1
	}

	if config.API.TLSEnabled {
		clientAuth := parseClientAuth(config.API.TLSClientAuth)
		if err := apiSrv.StartTLS(
			config.API.TLSCertFile,
			config.API.TLSKeyFile,
			config.API.TLSCAFile,
			clientAuth,
		); err != nil {
			_, _ = fmt.Fprintf(stderr, "start api server: %v\n", err)
			return 1
		}
	} else {
		if err := apiSrv.Start(); err != nil {
			_, _ = fmt.Fprintf(stderr, "start api server: %v\n", err)
			return 1
		}
	}
	defer func() {
		if err := apiSrv.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down api server: %v", err)
		}
	}()

	batchCollector := setupBatchCollectorFunc(bitPool, config)
	defer batchCollector.Close()

	mqttClient, err := connectMQTTFunc(config, batchCollector)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer mqttClient.Close()

	waitForShutdownFunc(mqttClient, batchCollector, apiSrv)

	return 0
}

// loadConfig loads the gateway configuration from environment variables and
// the optional .env file.
func loadConfig() (qrngconfig.Config, error) {
	config, err := qrngconfigLoadFunc()
	if err != nil {
		return config, fmt.Errorf("config: %w", err)
	}

	log.Printf("environment: %s", config.Environment)
	return config, nil
}

// newBaselineSource builds the classical comparison generator. Seed
// handling, including the time-based zero seed, lives in the source package.
func newBaselineSource(cfg qrngconfig.Baseline) source.Source {
	return source.NewPseudorandom(cfg.Seed)
}

// setupBatchCollector creates a BatchCollector that feeds measurement bits to
// the local bit pool.
func setupBatchCollector(bitPool *pool.BitPool, config qrngconfig.Config) *collector.BatchCollector {
	batchSize := config.Collector.BatchSizeBits
	flushInterval := config.Collector.FlushInterval

	batchCollector := collector.NewBatchCollectorWithFlush(batchSize, flushInterval, bitPool)

	log.Printf("batch collector: initialized (batch_size_bits=%d, flush_interval=%.1fs)",
		batchSize, flushInterval.Seconds())

	return batchCollector
}

// setupMQTT creates and connects the MQTT client, wiring the RxHandler to the
// given BatchCollector.
func setupMQTT(config qrngconfig.Config, batchCollector *collector.BatchCollector) (mqttClient, error) {
	handler := &qrngmqtt.RxHandler{
		Collector: batchCollector,
	}

	client, err := newMQTTClient(qrngmqtt.Config{
		BrokerURL: config.MQTT.BrokerURL,
		ClientID:  config.MQTT.ClientID,
		Topics:    config.MQTT.Topics,
		QoS:       config.MQTT.QoS,
		Username:  config.MQTT.Username,
		Password:  config.MQTT.Password,
		TLSCAFile: config.MQTT.TLSCAFile,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("mqtt init: %w", err)
	}

	if err := client.Connect(); err != nil {
		client.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	log.Printf("mqtt: connected -> %s, subscribed -> %v (QoS=%d)",
		config.MQTT.BrokerURL, config.MQTT.Topics, config.MQTT.QoS)
	log.Println("qrng-gateway: ready, processing measurements...")

	return client, nil
}

// connectMQTTWithRetry repeatedly invokes setupMQTTFunc until a connection is
// established. It applies exponential back-off with bounded jitter so multiple
// instances do not retry in lockstep during broker outages.
func connectMQTTWithRetry(config qrngconfig.Config, batchCollector *collector.BatchCollector) (mqttClient, error) {
	const (
		initialDelay   = 1 * time.Second
		maxDelay       = 30 * time.Second
		jitterFraction = 0.2
	)

	delay := initialDelay
	attempt := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		attempt++
		client, err := setupMQTTFunc(config, batchCollector)
		if err == nil {
			if attempt > 1 {
				log.Printf("mqtt: connected after %d attempt(s)", attempt)
			}
			return client, nil
		}

		wait := delay
		if jitterFraction > 0 {
			jitter := 1 + (rng.Float64()*2-1)*jitterFraction
			wait = time.Duration(float64(delay) * jitter)
			if wait < 0 {
				wait = 0
			}
		}

		log.Printf("mqtt: connect attempt %d failed: %v (retrying in %s)", attempt, err, wait)
		time.Sleep(wait)

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// validateAPIAddr ensures the analysis API address resolves to a loopback
// interface unless allowPublic is true.
func validateAPIAddr(addr string, allowPublic bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("api addr: invalid address %q: %w", addr, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if host == "localhost" {
			return nil
		}
		if allowPublic {
			return nil
		}
		return fmt.Errorf("api addr: must bind to loopback address (127.0.0.1, ::1, or localhost), got %q", host)
	}

	if !ip.IsLoopback() {
		if allowPublic {
			return nil
		}
		return fmt.Errorf("api addr: must bind to loopback address, got %q", host)
	}

	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM is received, then tears down
// subsystems in order: MQTT, collector, analysis API server. The metrics
// server is shut down by run's deferred cleanup.
func waitForShutdown(mqttClient mqttClient, collector *collector.BatchCollector, apiHTTPServer apiServer) {
	sig := make(chan os.Signal, 1)
	signalNotifyFunc(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down gracefully...")

	if mqttClient != nil {
		mqttClient.Close()
	}

	if collector != nil {
		collector.Close()
	}

	if apiHTTPServer != nil {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiHTTPServer.Shutdown(shutdownContext); err != nil {
			log.Printf("api server: shutdown error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
