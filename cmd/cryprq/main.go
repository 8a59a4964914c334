// Command cryprq is a demo, benchmark, and handshake-example CLI for the
// CrypRQ transport: a hybrid post-quantum VPN tunnel over UDP.
package main

import (
	"flag"
	"fmt"
	"os"

	pkgversion "github.com/cryprq/cryprq/pkg/version"
)

var (
	version   = ""
	buildTime = "unknown"
	gitCommit = "unknown"
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand()
	case "bench":
		benchCommand()
	case "example":
		exampleCommand()
	case "version":
		fmt.Printf("cryprq version %s\n", getVersion())
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cryprq - Post-Quantum VPN Demo & Benchmark Tool

USAGE:
    cryprq <command> [options]

COMMANDS:
    demo      Run an interactive handshake + tunnel demo (client/server)
    bench     Run handshake and throughput benchmarks
    example   Show example hybrid-KEM usage with explanations
    version   Print version information
    help      Show this help message

Run 'cryprq <command> -h' for more information on a command.

EXAMPLES:
    # Start demo server
    cryprq demo -mode server -addr :8443

    # Connect demo client
    cryprq demo -mode client -addr 127.0.0.1:8443

    # Connect demo client through a pooled tunnel (reuse across sends)
    cryprq demo -mode client -addr 127.0.0.1:8443 -pool -pool-max-conns 2

    # Run handshake benchmark
    cryprq bench -handshakes 100`)
}

func demoCommand() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	mode := fs.String("mode", "server", "server or client")
	addr := fs.String("addr", ":8443", "UDP address to listen on or connect to")
	message := fs.String("message", "hello from cryprq", "message for the client to send")
	verbose := fs.Bool("verbose", false, "print security properties on startup")
	logLevel := fs.String("log-level", "info", "debug, info, warn, error, silent")
	logFormat := fs.String("log-format", "text", "text or json")
	pooled := fs.Bool("pool", false, "client mode: acquire/release the tunnel through a tunnel.Pool instead of holding it directly")
	poolMaxConns := fs.Int("pool-max-conns", 1, "client -pool mode: max established tunnels the pool keeps open to -addr")
	_ = fs.Parse(os.Args[2:])

	runDemo(*mode, *addr, *message, *verbose, *logLevel, *logFormat, *pooled, *poolMaxConns)
}

func benchCommand() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	handshakes := fs.Int("handshakes", 0, "number of handshakes to benchmark")
	throughput := fs.Bool("throughput", false, "run a throughput benchmark")
	size := fs.String("size", "4096", "total number of bytes to send in the throughput benchmark")
	duration := fs.String("duration", "3s", "duration of the throughput benchmark")
	_ = fs.Parse(os.Args[2:])

	runBench(*handshakes, *throughput, *size, *duration)
}

func exampleCommand() {
	runExample()
}
