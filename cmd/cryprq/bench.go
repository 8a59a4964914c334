package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cryprq/cryprq/pkg/chkem"
	"github.com/cryprq/cryprq/pkg/crypto"
	"github.com/cryprq/cryprq/pkg/protocol"
	"github.com/cryprq/cryprq/pkg/tunnel"
)

func runBench(handshakes int, throughputTest bool, sizeStr, durationStr string) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      CrypRQ Post-Quantum VPN Benchmark                     ║")
	fmt.Println("║      ML-KEM-768 + X25519 hybrid handshake                 ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	if handshakes == 0 && !throughputTest {
		fmt.Println("No benchmarks specified. Use -handshakes or -throughput")
		fmt.Println("Run 'cryprq bench -h' for usage")
		os.Exit(1)
	}

	if handshakes > 0 {
		benchHandshakes(handshakes)
		fmt.Println()
	}

	if throughputTest {
		size := parseSize(sizeStr)
		duration := parseDuration(durationStr)
		benchThroughput(size, duration)
	}
}

type peerMaterial struct {
	identity *crypto.Ed25519KeyPair
	kem      *chkem.KeyPair
}

func newPeerMaterial() (peerMaterial, error) {
	identity, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		return peerMaterial{}, err
	}
	kem, err := chkem.GenerateKeyPair()
	if err != nil {
		return peerMaterial{}, err
	}
	return peerMaterial{identity: identity, kem: kem}, nil
}

func signedKEMPub(p peerMaterial) ([]byte, error) {
	return crypto.Ed25519Sign(p.identity, p.kem.PublicKey().Bytes())
}

// benchHandshakes measures the in-process cost of InitiatorEstablish +
// ResponderEstablish, which is the CPU work the wire bootstrap in
// bootstrap.go spends its round-trips waiting on.
func benchHandshakes(count int) {
	fmt.Printf("Benchmarking Handshakes (%d iterations)\n", count)
	fmt.Println(strings.Repeat("─", 60))

	server, err := newPeerMaterial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	serverSig, err := signedKEMPub(server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	durations := make([]time.Duration, count)
	errors := 0

	startTime := time.Now()
	for i := 0; i < count; i++ {
		client, err := newPeerMaterial()
		if err != nil {
			errors++
			continue
		}
		clientSig, err := signedKEMPub(client)
		if err != nil {
			errors++
			continue
		}

		handshakeStart := time.Now()

		clientSession, ct, err := tunnel.InitiatorEstablish(
			client.identity, client.kem,
			server.identity.PublicKeyBytes(), server.kem.PublicKey(), serverSig,
			tunnel.NewDefaultRateLimiter(),
		)
		if err != nil {
			errors++
			durations[i] = 0
			continue
		}

		_, err = tunnel.ResponderEstablish(
			server.identity, server.kem,
			client.identity.PublicKeyBytes(), client.kem.PublicKey(), clientSig,
			ct, tunnel.NewDefaultRateLimiter(),
		)
		if err != nil {
			errors++
			durations[i] = 0
			continue
		}

		durations[i] = time.Since(handshakeStart)
		_ = clientSession.Close()

		step := count / 10
		if step == 0 {
			step = 1
		}
		if (i+1)%step == 0 || i == count-1 {
			fmt.Printf("Progress: %d/%d (%.0f%%)\r", i+1, count, float64(i+1)/float64(count)*100)
		}
	}
	fmt.Println()
	totalTime := time.Since(startTime)

	successCount := count - errors
	printHandshakeResults(count, successCount, errors, totalTime, durations)
}

func printHandshakeResults(total, successful, failed int, totalTime time.Duration, durations []time.Duration) {
	if failed == total {
		fmt.Fprintf(os.Stderr, "All handshakes failed\n")
		os.Exit(1)
	}

	var sum, min, max time.Duration
	min = time.Hour

	for _, d := range durations {
		if d == 0 {
			continue
		}
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}

	avg := sum / time.Duration(successful)

	fmt.Println("\nResults:")
	fmt.Printf("  Total handshakes: %d\n", total)
	fmt.Printf("  Successful: %d\n", successful)
	fmt.Printf("  Failed: %d\n", failed)
	fmt.Printf("  Total time: %v\n", totalTime)
	fmt.Println()
	fmt.Println("Handshake Performance:")
	fmt.Printf("  Average: %v\n", avg)
	fmt.Printf("  Minimum: %v\n", min)
	fmt.Printf("  Maximum: %v\n", max)
	fmt.Printf("  Throughput: %.2f handshakes/sec\n", float64(successful)/totalTime.Seconds())
	fmt.Println()

	printHandshakeRating(avg)
}

func printHandshakeRating(avg time.Duration) {
	if avg < 2*time.Millisecond {
		fmt.Println("✓ Performance: Excellent (< 2ms avg)")
	} else if avg < 5*time.Millisecond {
		fmt.Println("✓ Performance: Good (< 5ms avg)")
	} else if avg < 10*time.Millisecond {
		fmt.Println("⚠ Performance: Acceptable (< 10ms avg)")
	} else {
		fmt.Println("⚠ Performance: Slow (> 10ms avg)")
	}
}

// benchThroughput measures Tunnel.Send/ReceiveAndDispatch throughput over a
// loopback UDP pair, once the handshake has already established directional
// keys on both ends.
func benchThroughput(totalBytes int64, duration time.Duration) {
	fmt.Printf("Benchmarking Throughput\n")
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("Target: %s over %v\n", formatSize(totalBytes), duration)
	fmt.Printf("Cipher: %s\n\n", crypto.ActiveCipherSuite())

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer clientConn.Close()
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer serverConn.Close()

	server, err := newPeerMaterial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	client, err := newPeerMaterial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	serverSig, err := signedKEMPub(server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	clientSig, err := signedKEMPub(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	clientSession, ct, err := tunnel.InitiatorEstablish(
		client.identity, client.kem,
		server.identity.PublicKeyBytes(), server.kem.PublicKey(), serverSig,
		tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Handshake error: %v\n", err)
		os.Exit(1)
	}
	serverSession, err := tunnel.ResponderEstablish(
		server.identity, server.kem,
		client.identity.PublicKeyBytes(), client.kem.PublicKey(), clientSig,
		ct, tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Handshake error: %v\n", err)
		os.Exit(1)
	}
	clientSession.SetPeerEndpoint(serverConn.LocalAddr())
	serverSession.SetPeerEndpoint(clientConn.LocalAddr())

	clientTunnel := tunnel.New(clientConn, clientSession, tunnel.DefaultConfig(), nil)
	defer clientTunnel.Close()
	serverTunnel := tunnel.New(serverConn, serverSession, tunnel.DefaultConfig(), nil)
	defer serverTunnel.Close()

	chunkSize := 8192
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = byte(i % 256)
	}

	var wg sync.WaitGroup
	var totalSent, totalReceived int64
	var sendDuration, receiveDuration time.Duration

	wg.Add(1)
	go func() {
		defer wg.Done()
		receiveStart := time.Now()
		for time.Since(receiveStart) < duration+time.Second {
			rctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			err := serverTunnel.ReceiveAndDispatch(rctx)
			cancel()
			if err != nil {
				if time.Since(receiveStart) >= duration {
					break
				}
				continue
			}
			totalReceived += int64(chunkSize)
		}
		receiveDuration = time.Since(receiveStart)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(100 * time.Millisecond)

		sendStart := time.Now()
		lastProgress := time.Now()
		for totalSent < totalBytes && time.Since(sendStart) < duration {
			if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, chunk); err != nil {
				fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
				break
			}
			totalSent += int64(chunkSize)

			if time.Since(lastProgress) >= time.Second {
				elapsed := time.Since(sendStart)
				mbps := float64(totalSent) / elapsed.Seconds() / 1024 / 1024
				fmt.Printf("Progress: %s / %s (%.1f MB/s)\r",
					formatSize(totalSent), formatSize(totalBytes), mbps)
				lastProgress = time.Now()
			}
		}
		sendDuration = time.Since(sendStart)
	}()

	wg.Wait()
	printThroughputResults(totalSent, totalReceived, sendDuration, receiveDuration)
}

func printThroughputResults(totalSent, totalReceived int64, sendDuration, receiveDuration time.Duration) {
	fmt.Println()
	fmt.Println("\nResults:")
	fmt.Printf("  Data sent: %s\n", formatSize(totalSent))
	fmt.Printf("  Data received: %s\n", formatSize(totalReceived))
	fmt.Printf("  Send duration: %v\n", sendDuration)
	fmt.Printf("  Receive duration: %v\n", receiveDuration)
	fmt.Println()

	if sendDuration > 0 {
		sendMBps := float64(totalSent) / sendDuration.Seconds() / 1024 / 1024
		fmt.Printf("Send Throughput: %.2f MB/s (%.2f Mbps)\n", sendMBps, sendMBps*8)
	}

	if receiveDuration > 0 {
		recvMBps := float64(totalReceived) / receiveDuration.Seconds() / 1024 / 1024
		fmt.Printf("Receive Throughput: %.2f MB/s (%.2f Mbps)\n", recvMBps, recvMBps*8)
	}

	if sendDuration > 0 && receiveDuration > 0 {
		avgMBps := (float64(totalSent)/sendDuration.Seconds() + float64(totalReceived)/receiveDuration.Seconds()) / 2 / 1024 / 1024
		printThroughputRating(avgMBps)
	}
}

func printThroughputRating(avgMBps float64) {
	fmt.Println()
	if avgMBps > 500 {
		fmt.Println("✓ Performance: Excellent (> 500 MB/s)")
	} else if avgMBps > 200 {
		fmt.Println("✓ Performance: Good (> 200 MB/s)")
	} else if avgMBps > 50 {
		fmt.Println("✓ Performance: Acceptable (> 50 MB/s)")
	} else {
		fmt.Println("⚠ Performance: May need optimization (< 50 MB/s)")
	}
}

func parseSize(s string) int64 {
	var value int64
	var unit string
	_, _ = fmt.Sscanf(s, "%d%s", &value, &unit)

	switch unit {
	case "KB", "kb", "K", "k":
		return value * 1024
	case "MB", "mb", "M", "m":
		return value * 1024 * 1024
	case "GB", "gb", "G", "g":
		return value * 1024 * 1024 * 1024
	default:
		return value
	}
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid duration: %s\n", s)
		os.Exit(1)
	}
	return d
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), units[exp])
}
