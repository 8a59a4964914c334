package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cryprq/cryprq/pkg/chkem"
	"github.com/cryprq/cryprq/pkg/crypto"
	"github.com/cryprq/cryprq/pkg/metrics"
	"github.com/cryprq/cryprq/pkg/protocol"
	"github.com/cryprq/cryprq/pkg/tunnel"
)

func runDemo(mode, addr, message string, verbose bool, logLevel, logFormat string, pooled bool, poolMaxConns int) {
	logger, observerFactory, err := setupObservability(logLevel, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch mode {
	case "server":
		runDemoServer(addr, verbose, observerFactory, logger)
	case "client":
		if pooled {
			runDemoClientPooled(addr, message, verbose, poolMaxConns, observerFactory, logger)
			return
		}
		runDemoClient(addr, message, verbose, observerFactory, logger)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s (use 'server' or 'client')\n", mode)
		os.Exit(1)
	}
}

func runDemoServer(addr string, verbose bool, observerFactory tunnel.ObserverFactory, logger *metrics.Logger) {
	printBanner("Server")
	if verbose {
		printSecurityProperties()
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to listen: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Listening on %s (UDP)\n", conn.LocalAddr())

	identity, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate identity key: %v\n", err)
		os.Exit(1)
	}
	kem, err := chkem.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate KEM key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Waiting for a client handshake...")
	handshakeStart := time.Now()
	session, peerAddr, err := serverBootstrap(conn, identity, kem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: handshake failed: %v\n", err)
		os.Exit(1)
	}
	_ = conn.SetReadDeadline(time.Time{})
	session.SetObserver(observerFromFactory(observerFactory, session))
	fmt.Printf("Handshake complete with %s in %s\n", peerAddr, time.Since(handshakeStart))

	t := tunnel.New(conn, session, tunnel.DefaultConfig(), nil)
	defer t.Close()
	t.Handler = func(header protocol.Header, payload []byte) {
		if header.MessageType != protocol.MessageTypeData {
			return
		}
		fmt.Printf("← %s\n", payload)
		if err := t.Send(protocol.MessageTypeData, header.StreamID, 0, payload); err != nil {
			logger.Error("echo failed", metrics.Fields{"error": err.Error()})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trapSignals(cancel)

	fmt.Println("Echoing DATA records back to the client (Ctrl-C to stop)...")
	for {
		if ctx.Err() != nil {
			return
		}
		if err := receiveAndEcho(ctx, t, logger); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("receive loop stopped", metrics.Fields{"error": err.Error()})
			return
		}
	}
}

func receiveAndEcho(ctx context.Context, t *tunnel.Tunnel, logger *metrics.Logger) error {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return t.ReceiveAndDispatch(rctx)
}

func runDemoClient(addr, message string, verbose bool, observerFactory tunnel.ObserverFactory, logger *metrics.Logger) {
	printBanner("Client")
	if verbose {
		printSecurityProperties()
	}

	serverAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: resolve address: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open socket: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	identity, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate identity key: %v\n", err)
		os.Exit(1)
	}
	kem, err := chkem.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate KEM key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connecting to %s...\n", serverAddr)
	handshakeStart := time.Now()
	session, err := clientBootstrap(conn, serverAddr, identity, kem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: handshake failed: %v\n", err)
		os.Exit(1)
	}
	_ = conn.SetReadDeadline(time.Time{})
	session.SetObserver(observerFromFactory(observerFactory, session))
	fmt.Printf("Handshake complete in %s\n", time.Since(handshakeStart))

	t := tunnel.New(conn, session, tunnel.DefaultConfig(), nil)
	defer t.Close()

	if message != "" {
		if err := t.Send(protocol.MessageTypeData, 1, 0, []byte(message)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: send: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("→ %s\n", message)
	}

	fmt.Println("Type messages to send; Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := t.Send(protocol.MessageTypeData, 1, 0, []byte(line)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: send: %v\n", err)
			continue
		}
		fmt.Printf("→ %s\n", line)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Input error: %v\n", err)
	}
}

// runDemoClientPooled mirrors runDemoClient but routes every send through a
// tunnel.Pool instead of holding one *tunnel.Tunnel for the process
// lifetime. maxConns bounds how many established tunnels the pool keeps
// open to addr at once, the outbound counterpart to the inbound
// Config.MaxInboundConnections bound a server enforces on its accept path.
func runDemoClientPooled(addr, message string, verbose bool, maxConns int, observerFactory tunnel.ObserverFactory, logger *metrics.Logger) {
	printBanner("Client (pooled)")
	if verbose {
		printSecurityProperties()
	}

	identity, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate identity key: %v\n", err)
		os.Exit(1)
	}
	kem, err := chkem.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate KEM key: %v\n", err)
		os.Exit(1)
	}

	dial := func(ctx context.Context, peer string) (*tunnel.Tunnel, error) {
		serverAddr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			return nil, fmt.Errorf("resolve address: %w", err)
		}
		conn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			return nil, fmt.Errorf("open socket: %w", err)
		}
		session, err := clientBootstrap(conn, serverAddr, identity, kem)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake failed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Time{})
		session.SetObserver(observerFromFactory(observerFactory, session))
		return tunnel.New(conn, session, tunnel.DefaultConfig(), nil), nil
	}

	poolConfig := tunnel.DefaultPoolConfig()
	poolConfig.MaxConnsPerPeer = maxConns
	poolConfig.MinConnsPerPeer = 1
	poolConfig.Peers = []string{addr}

	pool, err := tunnel.NewPool(dial, poolConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create pool: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	fmt.Printf("Warming pool for %s (max %d conns)...\n", addr, maxConns)
	if err := pool.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: start pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	sendPooled := func(payload string) error {
		pc, err := pool.Acquire(ctx, addr)
		if err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
		if err := pc.Tunnel().Send(protocol.MessageTypeData, 1, 0, []byte(payload)); err != nil {
			pc.Close()
			return fmt.Errorf("send: %w", err)
		}
		return pc.Release()
	}

	if message != "" {
		if err := sendPooled(message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("→ %s\n", message)
	}

	fmt.Println("Type messages to send; Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := sendPooled(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("→ %s\n", line)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Input error: %v\n", err)
	}

	stats := pool.Stats()
	fmt.Printf("\nPool stats: created=%d acquires=%d avg_acquire=%.2fms avg_dial=%.2fms\n",
		stats.ConnectionsCreated, stats.AcquiresTotal, stats.AvgAcquireWaitMs, stats.AvgDialMs)
}

func trapSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	cancel()
}

func printBanner(role string) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║      CrypRQ Post-Quantum VPN Demo — %-20s ║\n", role)
	fmt.Println("║      ML-KEM-768 + X25519 + Ed25519 identity binding       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func printSecurityProperties() {
	fmt.Println("Security Properties:")
	fmt.Println("  • Post-Quantum: ML-KEM-768 (NIST Category 3)")
	fmt.Println("  • Classical: X25519 (128-bit)")
	fmt.Println("  • Hybrid: Secure if EITHER algorithm is secure")
	fmt.Println("  • Identity binding: Ed25519 signature over the KEM public key")
	fmt.Println()
}

func setupObservability(logLevel, logFormat string) (*metrics.Logger, tunnel.ObserverFactory, error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := parseLogFormat(logFormat)
	if err != nil {
		return nil, nil, err
	}

	logger := metrics.NewLogger(
		metrics.WithOutput(os.Stderr),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithFields(metrics.Fields{"app": "cryprq"}),
	)
	metrics.SetLogger(logger)

	collector := metrics.NewCollector(metrics.Labels{"service": "cryprq"})
	metrics.SetGlobal(collector)

	observerFactory := func(session *tunnel.Session) tunnel.Observer {
		return metrics.NewTunnelObserver(metrics.TunnelObserverConfig{
			Collector: collector,
			SessionID: session.RemoteIdentityPK,
			Role:      session.Role.String(),
		})
	}

	return logger, observerFactory, nil
}

func observerFromFactory(factory tunnel.ObserverFactory, session *tunnel.Session) tunnel.Observer {
	if factory == nil {
		return nil
	}
	return factory(session)
}

func parseLogLevel(level string) (metrics.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return metrics.LevelDebug, nil
	case "info":
		return metrics.LevelInfo, nil
	case "warn", "warning":
		return metrics.LevelWarn, nil
	case "error":
		return metrics.LevelError, nil
	case "silent", "off", "none":
		return metrics.LevelSilent, nil
	default:
		return metrics.LevelInfo, fmt.Errorf("invalid log level: %s (use debug, info, warn, error, silent)", level)
	}
}

func parseLogFormat(format string) (metrics.Format, error) {
	switch strings.ToLower(format) {
	case "text":
		return metrics.FormatText, nil
	case "json":
		return metrics.FormatJSON, nil
	default:
		return metrics.FormatText, fmt.Errorf("invalid log format: %s (use text or json)", format)
	}
}
