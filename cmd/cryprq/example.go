package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cryprq/cryprq/pkg/chkem"
)

func runExample() {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      CrypRQ: Interactive Examples                          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	runLiveHybridKEMExample()

	examples := []struct {
		title       string
		description string
		code        string
	}{
		{
			title:       "Example 1: Establishing a tunnel over UDP",
			description: "Hybrid handshake, then sending a DATA record",
			code: `package main

import (
    "net"
    "github.com/cryprq/cryprq/pkg/chkem"
    "github.com/cryprq/cryprq/pkg/crypto"
    "github.com/cryprq/cryprq/pkg/protocol"
    "github.com/cryprq/cryprq/pkg/tunnel"
)

func main() {
    // Exchange (remoteIdentityPK, remoteKEMPub, remoteSignature) with the
    // peer out of band before calling establish.
    identity, _ := crypto.GenerateEd25519KeyPair()
    kemKeys, _ := chkem.GenerateKeyPair()

    session, ct, _ := tunnel.InitiatorEstablish(
        identity, kemKeys, remoteIdentityPK, remoteKEMPub, remoteSig,
        tunnel.NewDefaultRateLimiter(),
    )
    _ = ct // send to the responder so it can call ResponderEstablish

    conn, _ := net.ListenPacket("udp", ":0")
    session.SetPeerEndpoint(peerAddr)
    t := tunnel.New(conn, session, tunnel.DefaultConfig(), nil)
    defer t.Close()

    t.Send(protocol.MessageTypeData, 1, 0, []byte("hello, quantum world"))
}`,
		},
		{
			title:       "Example 2: Low-level hybrid KEM",
			description: "Direct use of the ML-KEM-768 + X25519 combiner",
			code: `package main

import (
    "bytes"
    "fmt"
    "github.com/cryprq/cryprq/pkg/chkem"
)

func main() {
    // RECIPIENT: generate a hybrid key pair
    keyPair, _ := chkem.GenerateKeyPair()
    publicKey := keyPair.PublicKey()

    // SENDER: encapsulate against the recipient's public key
    ciphertext, ssKemSender, ssDHSender, _ := chkem.Encapsulate(publicKey)

    // RECIPIENT: decapsulate to recover the same two shared secrets
    ssKemRecipient, ssDHRecipient, _ := chkem.Decapsulate(ciphertext, keyPair)

    fmt.Printf("KEM secrets match: %v\n", bytes.Equal(ssKemSender, ssKemRecipient))
    fmt.Printf("DH secrets match: %v\n", bytes.Equal(ssDHSender, ssDHRecipient))
}`,
		},
		{
			title:       "Example 3: Custom tunnel configuration",
			description: "Tuning rekey interval, rate limits, and allowed peers",
			code: `package main

import (
    "time"
    "github.com/cryprq/cryprq/pkg/tunnel"
)

func main() {
    cfg := tunnel.DefaultConfig()
    cfg.RekeyInterval = 60 * time.Second
    cfg.RateLimiterRate = 50_000
    cfg.AllowedPeerIdentities[string(serverIdentityPK)] = true

    if err := cfg.Validate(); err != nil {
        panic(err)
    }

    t := tunnel.New(conn, session, cfg, deviceSink)
    defer t.Close()

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go tunnel.RunRekeyTask(ctx, t)
}`,
		},
		{
			title:       "Example 4: Session statistics",
			description: "Monitoring directional key epochs and record counters",
			code: `package main

import "fmt"

func printStats(session *tunnel.Session) {
    stats := session.Stats()
    fmt.Printf("Role: %s\n", session.Role)
    fmt.Printf("Epoch: %d\n", session.CurrentEpoch())
    fmt.Printf("Packets sent: %d\n", stats.PacketsSent)
    fmt.Printf("Packets received: %d\n", stats.PacketsRecv)
    fmt.Printf("Bytes sent: %d\n", stats.BytesSent)
    fmt.Printf("Bytes received: %d\n", stats.BytesReceived)
}`,
		},
		{
			title:       "Example 5: File transfer",
			description: "Streaming a file in chunks over a FILE_META/FILE_CHUNK/FILE_ACK exchange",
			code: `package main

import (
    "path/filepath"
    "github.com/cryprq/cryprq/pkg/filetransfer"
    "github.com/cryprq/cryprq/pkg/protocol"
)

func sendFile(t *tunnel.Tunnel, files *filetransfer.Manager, path string, size uint64, hash [32]byte) error {
    streamID := files.AllocStreamID()
    source, err := filetransfer.OpenFileSource(path)
    if err != nil {
        return err
    }
    meta := filetransfer.OutgoingMetadata(filepath.Base(path), size, hash)
    files.RegisterOutgoing(streamID, meta, source)
    if err := t.Send(protocol.MessageTypeFileMeta, streamID, 0, meta.Encode()); err != nil {
        return err
    }

    buf := make([]byte, 64*1024)
    for {
        n, done, err := files.NextChunk(streamID, buf)
        if err != nil {
            return err
        }
        if n > 0 {
            if err := t.Send(protocol.MessageTypeFileChunk, streamID, 0, buf[:n]); err != nil {
                return err
            }
        }
        if done {
            return nil
        }
    }
}`,
		},
	}

	for i, ex := range examples {
		fmt.Printf("┌%s┐\n", strings.Repeat("─", 58))
		fmt.Printf("│ %s%s │\n", ex.title, strings.Repeat(" ", maxInt(0, 58-len(ex.title)-2)))
		fmt.Printf("└%s┘\n", strings.Repeat("─", 58))
		fmt.Println()
		fmt.Println(ex.description)
		fmt.Println()
		fmt.Println(ex.code)
		fmt.Println()

		if i < len(examples)-1 {
			fmt.Println()
		}
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Next Steps                              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Try the demo:")
	fmt.Println("  1. Terminal 1: cryprq demo -mode server -addr :8443")
	fmt.Println("  2. Terminal 2: cryprq demo -mode client -addr 127.0.0.1:8443")
	fmt.Println()
	fmt.Println("Run benchmarks:")
	fmt.Println("  cryprq bench -handshakes 100 -throughput")
	fmt.Println()
}

func runLiveHybridKEMExample() {
	fmt.Println("Live run: hybrid key encapsulation")
	fmt.Println(strings.Repeat("─", 60))

	keyPair, err := chkem.GenerateKeyPair()
	if err != nil {
		fmt.Printf("generate key pair: %v\n", err)
		return
	}
	publicKey := keyPair.PublicKey()

	ciphertext, ssKemSender, ssDHSender, err := chkem.Encapsulate(publicKey)
	if err != nil {
		fmt.Printf("encapsulate: %v\n", err)
		return
	}

	ssKemRecipient, ssDHRecipient, err := chkem.Decapsulate(ciphertext, keyPair)
	if err != nil {
		fmt.Printf("decapsulate: %v\n", err)
		return
	}

	fmt.Printf("  Public key size:  %d bytes\n", len(publicKey.Bytes()))
	fmt.Printf("  Ciphertext size:  %d bytes\n", len(ciphertext.Bytes()))
	fmt.Printf("  KEM secrets match: %v\n", bytes.Equal(ssKemSender, ssKemRecipient))
	fmt.Printf("  DH secrets match:  %v\n", bytes.Equal(ssDHSender, ssDHRecipient))
	fmt.Println()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
