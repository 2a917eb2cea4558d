// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftcast/beamcore/internal/cryptoframe"
	"github.com/driftcast/beamcore/internal/session"
	"github.com/driftcast/beamcore/internal/transport"
	"github.com/driftcast/beamcore/internal/transport/reliable"
	"github.com/driftcast/beamcore/internal/transport/unreliable"
	"github.com/driftcast/beamcore/internal/util"
)

// beamrelay is a standalone loopback peer used to exercise the transport
// layer (STUN reflexive lookup, the UDP handshake, and the TCP bulk
// socket) against a real network stack without a full streaming session.
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	showHelp := flag.Bool("h", false, "show this help message")
	showVer := flag.Bool("version", false, "show version information")
	flag.CommandLine.Parse(args)

	if *showVer {
		fmt.Println("beamrelay v" + appVersion)
		return 0
	}
	if *showHelp || flag.NArg() == 0 {
		showUsage()
		return 0
	}

	switch flag.Arg(0) {
	case "stun":
		return runSTUN(flag.Args()[1:])
	case "listen":
		return runListen(flag.Args()[1:])
	case "dial":
		return runDial(flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", flag.Arg(0))
		showUsage()
		return 1
	}
}

var appVersion = "dev"

func showUsage() {
	fmt.Println("beamrelay - transport-layer loopback peer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  beamrelay stun <bind-addr> <stun-server>")
	fmt.Println("  beamrelay listen <bind-addr> <key-hex>")
	fmt.Println("  beamrelay dial <bind-addr> <remote-addr> <key-hex>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        show this help message")
	fmt.Println("  -version  show version information")
}

func runSTUN(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Error: stun requires <bind-addr> <stun-server>")
		return 2
	}
	bindAddr, stunServer := args[0], args[1]

	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: resolve bind addr: %v\n", err)
		return 1
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: listen: %v\n", err)
		return 1
	}
	defer conn.Close()

	public, err := transport.PublicEndpoint(conn, stunServer, util.DefaultConnectTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: stun lookup: %v\n", err)
		return 1
	}
	fmt.Printf("RELAY: public endpoint is %s\n", public)
	return 0
}

// runListen binds the unreliable (media) socket and a reliable (bulk
// control) TCP listener and echoes traffic back to the peer until
// interrupted. key-hex is validated against the same 16-byte rule the
// session handshake enforces but is not used here: a bound UDP listener
// serves any sender, so the mutual-possession handshake (which needs a
// single connected peer) belongs to the dial side of this loopback pair.
func runListen(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Error: listen requires <bind-addr> <key-hex>")
		return 2
	}
	bindAddr, keyHex := args[0], args[1]

	if _, err := session.KeyFromHex(keyHex); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	udpSock, err := unreliable.Listen(bindAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: listen: %v\n", err)
		return 1
	}
	defer udpSock.Shutdown()

	tcpLn, err := net.Listen("tcp", bindAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: listen tcp: %v\n", err)
		return 1
	}
	defer tcpLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("RELAY: shutting down...")
		cancel()
	}()

	go serveBulkEcho(tcpLn)

	log.Printf("RELAY: listening for media on %s", bindAddr)
	for ctx.Err() == nil {
		b, err := udpSock.RecvDatagram(transport.WaitTimeoutDefault)
		if err != nil {
			continue
		}
		if err := udpSock.SendDatagram(b); err != nil {
			log.Printf("RELAY: echo failed: %v", err)
		}
	}
	return 0
}

// serveBulkEcho accepts one TCP connection and echoes every framed message
// back, exercising the reliable socket pair's length-prefix framing.
func serveBulkEcho(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	sock := reliable.Accept(conn)
	defer sock.Shutdown()
	for {
		frame, err := sock.RecvDatagram(30 * time.Second)
		if err != nil {
			return
		}
		if err := sock.SendDatagram(frame); err != nil {
			return
		}
	}
}

// runDial connects to a listening beamrelay peer, completes the
// handshake as the initiator, sends a handful of probe datagrams, and
// reports how many echoes round-tripped.
func runDial(args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: dial requires <bind-addr> <remote-addr> <key-hex>")
		return 2
	}
	bindAddr, remoteAddr, keyHex := args[0], args[1], args[2]

	key, err := session.KeyFromHex(keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	conn, err := transport.EstablishUnreliable(func() (*net.UDPConn, error) {
		laddr, err := net.ResolveUDPAddr("udp", bindAddr)
		if err != nil {
			return nil, err
		}
		raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
		if err != nil {
			return nil, err
		}
		return net.DialUDP("udp", laddr, raddr)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: establish: %v\n", err)
		return 1
	}
	defer conn.Close()

	if err := cryptoframe.Handshake(conn, key, transport.HandshakeTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: handshake: %v\n", err)
		return 1
	}
	log.Println("RELAY: handshake succeeded")

	sock, err := unreliable.Dial(conn.LocalAddr().String(), conn.RemoteAddr().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: wrap socket: %v\n", err)
		return 1
	}
	defer sock.Shutdown()

	const probes = 5
	acked := 0
	for i := 0; i < probes; i++ {
		msg := []byte(fmt.Sprintf("probe-%d", i))
		if err := sock.SendDatagram(msg); err != nil {
			log.Printf("RELAY: send failed: %v", err)
			continue
		}
		if _, err := sock.RecvDatagram(util.ShortTimeout); err == nil {
			acked++
		}
	}
	log.Printf("RELAY: %d/%d probes acknowledged", acked, probes)
	return 0
}
