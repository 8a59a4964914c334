// Package integration provides end-to-end integration tests for the CrypRQ
// post-quantum VPN transport: hybrid handshake, UDP record exchange, rekey,
// and replay protection, exercised only through the module's public API.
package integration

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cryprq/cryprq/internal/constants"
	"github.com/cryprq/cryprq/pkg/chkem"
	"github.com/cryprq/cryprq/pkg/crypto"
	"github.com/cryprq/cryprq/pkg/protocol"
	"github.com/cryprq/cryprq/pkg/tunnel"
)

const (
	shortTimeout  = 200 * time.Millisecond
	secondTimeout = time.Second
)

type peer struct {
	identity *crypto.Ed25519KeyPair
	kem      *chkem.KeyPair
}

func signKEMPub(t *testing.T, p peer) ([]byte, error) {
	t.Helper()
	return crypto.Ed25519Sign(p.identity, p.kem.PublicKey().Bytes())
}

func newPeer(t *testing.T) peer {
	t.Helper()
	identity, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateEd25519KeyPair: %v", err)
	}
	kem, err := chkem.GenerateKeyPair()
	if err != nil {
		t.Fatalf("chkem.GenerateKeyPair: %v", err)
	}
	return peer{identity: identity, kem: kem}
}

func establishPair(t *testing.T) (initiator, responder *tunnel.Session) {
	t.Helper()
	client := newPeer(t)
	server := newPeer(t)

	serverSig, err := crypto.Ed25519Sign(server.identity, server.kem.PublicKey().Bytes())
	if err != nil {
		t.Fatalf("sign server KEM key: %v", err)
	}
	clientSig, err := crypto.Ed25519Sign(client.identity, client.kem.PublicKey().Bytes())
	if err != nil {
		t.Fatalf("sign client KEM key: %v", err)
	}

	initiator, ct, err := tunnel.InitiatorEstablish(
		client.identity, client.kem,
		server.identity.PublicKeyBytes(), server.kem.PublicKey(), serverSig,
		tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		t.Fatalf("InitiatorEstablish: %v", err)
	}

	responder, err = tunnel.ResponderEstablish(
		server.identity, server.kem,
		client.identity.PublicKeyBytes(), client.kem.PublicKey(), clientSig,
		ct, tunnel.NewDefaultRateLimiter(),
	)
	if err != nil {
		t.Fatalf("ResponderEstablish: %v", err)
	}

	return initiator, responder
}

func udpTunnelPair(t *testing.T) (clientTunnel, serverTunnel *tunnel.Tunnel) {
	t.Helper()
	clientSess, serverSess := establishPair(t)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket client: %v", err)
	}
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket server: %v", err)
	}
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	clientSess.SetPeerEndpoint(serverConn.LocalAddr())
	serverSess.SetPeerEndpoint(clientConn.LocalAddr())

	cfg := tunnel.DefaultConfig()
	clientTunnel = tunnel.New(clientConn, clientSess, cfg, nil)
	serverTunnel = tunnel.New(serverConn, serverSess, cfg, nil)
	t.Cleanup(func() {
		clientTunnel.Close()
		serverTunnel.Close()
	})
	return clientTunnel, serverTunnel
}

func receiveOne(t *testing.T, tun *tunnel.Tunnel, timeout time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return tun.ReceiveAndDispatch(ctx)
}

// TestFullHandshakeAndDataTransfer verifies the complete tunnel
// establishment and a single DATA record round trip.
func TestFullHandshakeAndDataTransfer(t *testing.T) {
	clientSess, serverSess := establishPair(t)
	if clientSess.State() != tunnel.SessionStateEstablished {
		t.Errorf("client session not established: %v", clientSess.State())
	}
	if serverSess.State() != tunnel.SessionStateEstablished {
		t.Errorf("server session not established: %v", serverSess.State())
	}

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer clientConn.Close()
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer serverConn.Close()

	clientSess.SetPeerEndpoint(serverConn.LocalAddr())
	serverSess.SetPeerEndpoint(clientConn.LocalAddr())

	clientTunnel := tunnel.New(clientConn, clientSess, tunnel.DefaultConfig(), nil)
	defer clientTunnel.Close()
	serverTunnel := tunnel.New(serverConn, serverSess, tunnel.DefaultConfig(), nil)
	defer serverTunnel.Close()

	testData := []byte("Hello from the post-quantum client!")
	if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, testData); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := receiveOne(t, serverTunnel, time.Second); err != nil {
		t.Fatalf("ReceiveAndDispatch: %v", err)
	}

	stats := serverSess.Stats()
	if stats.PacketsRecv != 1 {
		t.Errorf("server packets received: got %d, want 1", stats.PacketsRecv)
	}
	if stats.BytesReceived != uint64(len(testData)) {
		t.Errorf("server bytes received: got %d, want %d", stats.BytesReceived, len(testData))
	}
}

// TestBidirectionalDataTransfer verifies records flow both directions.
func TestBidirectionalDataTransfer(t *testing.T) {
	clientTunnel, serverTunnel := udpTunnelPair(t)

	messages := []string{
		"Message 1: Client to Server",
		"Message 2: Server to Client",
		"Message 3: Client to Server",
		"Message 4: Server to Client",
	}

	for i, msg := range messages {
		var sender, receiver *tunnel.Tunnel
		if i%2 == 0 {
			sender, receiver = clientTunnel, serverTunnel
		} else {
			sender, receiver = serverTunnel, clientTunnel
		}

		if err := sender.Send(protocol.MessageTypeData, 1, 0, []byte(msg)); err != nil {
			t.Fatalf("message %d: Send: %v", i, err)
		}
		if err := receiveOne(t, receiver, time.Second); err != nil {
			t.Fatalf("message %d: ReceiveAndDispatch: %v", i, err)
		}
	}

	if clientTunnel.Session().Stats().PacketsRecv != 2 {
		t.Errorf("client should have received 2 of the 4 messages")
	}
	if serverTunnel.Session().Stats().PacketsRecv != 2 {
		t.Errorf("server should have received 2 of the 4 messages")
	}
}

// TestLargeDataTransfer verifies handling of payloads up to the maximum
// record size.
func TestLargeDataTransfer(t *testing.T) {
	clientTunnel, serverTunnel := udpTunnelPair(t)

	sizes := []int{100, 1000, 10000, int(constants.MaxPayloadSize)}

	for _, size := range sizes {
		testData := make([]byte, size)
		for i := range testData {
			testData[i] = byte(i % 256)
		}

		if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, testData); err != nil {
			t.Fatalf("size %d: Send: %v", size, err)
		}
		if err := receiveOne(t, serverTunnel, time.Second); err != nil {
			t.Fatalf("size %d: ReceiveAndDispatch: %v", size, err)
		}
	}

	if got := serverTunnel.Session().Stats().PacketsRecv; got != uint64(len(sizes)) {
		t.Errorf("packets received: got %d, want %d", got, len(sizes))
	}
}

// TestConcurrentSends verifies multiple concurrent sends from one side are
// all eventually observed by the receiver.
func TestConcurrentSends(t *testing.T) {
	clientTunnel, serverTunnel := udpTunnelPair(t)

	const messageCount = 10
	var wg sync.WaitGroup
	wg.Add(messageCount)
	for i := 0; i < messageCount; i++ {
		go func(i int) {
			defer wg.Done()
			_ = clientTunnel.Send(protocol.MessageTypeData, 1, 0, []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	received := 0
	deadline := time.Now().Add(2 * time.Second)
	for received < messageCount && time.Now().Before(deadline) {
		if err := receiveOne(t, serverTunnel, 200*time.Millisecond); err == nil {
			received++
		}
	}

	if received != messageCount {
		t.Errorf("received %d of %d concurrent messages", received, messageCount)
	}
}

// TestSessionStatistics verifies PacketsSent/BytesSent/PacketsRecv/
// BytesReceived are tracked across multiple records.
func TestSessionStatistics(t *testing.T) {
	clientTunnel, serverTunnel := udpTunnelPair(t)

	const messageCount = 5
	const messageSize = 100

	for i := 0; i < messageCount; i++ {
		msg := make([]byte, messageSize)
		if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if err := receiveOne(t, serverTunnel, time.Second); err != nil {
			t.Fatalf("ReceiveAndDispatch: %v", err)
		}
	}

	clientStats := clientTunnel.Session().Stats()
	serverStats := serverTunnel.Session().Stats()

	if clientStats.PacketsSent != uint64(messageCount) {
		t.Errorf("client packets sent: got %d, want %d", clientStats.PacketsSent, messageCount)
	}
	if clientStats.BytesSent != uint64(messageCount*messageSize) {
		t.Errorf("client bytes sent: got %d, want %d", clientStats.BytesSent, messageCount*messageSize)
	}
	if serverStats.PacketsRecv != uint64(messageCount) {
		t.Errorf("server packets received: got %d, want %d", serverStats.PacketsRecv, messageCount)
	}
}

// TestActiveCipherSuite verifies the process's active AEAD cipher suite is
// one of the two spec-defined suites and is consistently reported.
func TestActiveCipherSuite(t *testing.T) {
	suite := crypto.ActiveCipherSuite()
	if !suite.IsSupported() {
		t.Fatalf("active cipher suite %v is not a supported suite", suite)
	}
	t.Logf("active cipher suite: %s", suite)
}

// TestRekeyGraceWindow runs the rekey task on both tunnels, waits for the
// client's epoch to advance, and verifies that a record sent afterwards can
// be sent and received without a fatal error. It does not check that the
// server decrypted that record: ReceiveAndDispatch drops a record it cannot
// decrypt without returning an error.
func TestRekeyGraceWindow(t *testing.T) {
	clientSess, serverSess := establishPair(t)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer clientConn.Close()
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer serverConn.Close()

	clientSess.SetPeerEndpoint(serverConn.LocalAddr())
	serverSess.SetPeerEndpoint(clientConn.LocalAddr())

	fastCfg := tunnel.DefaultConfig()
	fastCfg.RekeyInterval = 30 * time.Millisecond

	clientTunnel := tunnel.New(clientConn, clientSess, fastCfg, nil)
	defer clientTunnel.Close()
	serverTunnel := tunnel.New(serverConn, serverSess, fastCfg, nil)
	defer serverTunnel.Close()

	// Prime delivery so the record layer has exchanged at least one
	// datagram and each side knows the other's address.
	if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, []byte("priming")); err != nil {
		t.Fatalf("Send priming: %v", err)
	}
	if err := receiveOne(t, serverTunnel, secondTimeout); err != nil {
		t.Fatalf("ReceiveAndDispatch priming: %v", err)
	}

	epochBefore := clientTunnel.Session().CurrentEpoch()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go tunnel.RunRekeyTask(ctx, clientTunnel)
	go tunnel.RunRekeyTask(ctx, serverTunnel)

	deadline := time.Now().Add(2 * time.Second)
	for clientTunnel.Session().CurrentEpoch() == epochBefore && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if clientTunnel.Session().CurrentEpoch() == epochBefore {
		t.Fatal("rekey did not advance the client epoch within the test window")
	}

	// The server decrypts this record under its current epoch, or under the
	// retired epoch's keys if it rekeyed and has not yet seen a record of the
	// new epoch; if its own rekey has not run yet the record is dropped.
	// Either way ReceiveAndDispatch returns nil.
	if err := clientTunnel.Send(protocol.MessageTypeData, 1, 0, []byte("after rekey")); err != nil {
		t.Fatalf("Send after rekey: %v", err)
	}
	if err := receiveOne(t, serverTunnel, secondTimeout); err != nil {
		t.Fatalf("ReceiveAndDispatch after rekey: %v", err)
	}
}

// TestTunnelTimeout verifies ReceiveAndDispatch respects context
// cancellation when no datagram arrives.
func TestTunnelTimeout(t *testing.T) {
	_, serverTunnel := udpTunnelPair(t)

	err := receiveOne(t, serverTunnel, 100*time.Millisecond)
	if err == nil {
		t.Error("expected a timeout error when nothing was sent")
	}
}
