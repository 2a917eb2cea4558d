// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/driftcast/beamcore/internal/config"
	"github.com/driftcast/beamcore/internal/session"
	"github.com/driftcast/beamcore/internal/util"
)

// Exit codes: normal completion is 0, an internal failure
// (handshake, decode, transport) is 1, a CLI usage error is
// WHIST_EXIT_CLI.
const (
	exitOK       = 0
	exitFailure  = 1
	exitCLI      = 2
	maxNewTabURLs = 10
	maxURLLength  = 2048
)

var appVersion = "dev"

// repeatableFlag collects -new-tab-url across multiple occurrences,
// capped at maxNewTabURLs.
type repeatableFlag struct{ values []string }

func (r *repeatableFlag) String() string { return fmt.Sprint(r.values) }

func (r *repeatableFlag) Set(v string) error {
	if len(v) > maxURLLength {
		return fmt.Errorf("new-tab-url exceeds %d characters", maxURLLength)
	}
	if len(r.values) >= maxNewTabURLs {
		return fmt.Errorf("at most %d -new-tab-url flags are accepted", maxNewTabURLs)
	}
	r.values = append(r.values, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("beamclient", flag.ContinueOnError)
	var (
		serverIP   = fs.String("server-ip", "", "IP address of the host to connect to")
		user       = fs.String("user", "", "user identifier for this session")
		windowName = fs.String("name", "beamcore", "window title")
		keyHex     = fs.String("private-key", "", "hex-encoded 16-byte pre-shared session key")
		cfgPath    = fs.String("config", "", "path to a JSON config file (defaults created if missing)")
		showHelp   = fs.Bool("help", false, "show this help message")
		showVer    = fs.Bool("version", false, "show version information")
	)
	var newTabURLs repeatableFlag
	fs.Var(&newTabURLs, "new-tab-url", fmt.Sprintf("open an extra tab at startup (repeatable, up to %d)", maxNewTabURLs))

	if err := fs.Parse(args); err != nil {
		// flag already printed usage on error.
		return exitCLI
	}

	if *showVer {
		fmt.Printf("beamclient v%s\n", appVersion)
		return exitOK
	}
	if *showHelp {
		showUsage()
		return exitOK
	}

	if *serverIP == "" {
		fmt.Fprintln(os.Stderr, "Error: -server-ip is required")
		showUsage()
		return exitCLI
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCLI
	}
	cfg.Transport.ServerIP = *serverIP

	key, err := session.KeyFromHex(*keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCLI
	}

	opt := session.Options{
		ServerIP:   *serverIP,
		User:       *user,
		WindowName: util.TruncateUTF8(*windowName, maxURLLength),
		NewTabURLs: newTabURLs.values,
		PrivateKey: key,
		Cfg:        cfg,
		DataDir:    "data",
	}

	for _, u := range opt.NewTabURLs {
		if err := util.OpenURL(u); err != nil {
			log.Printf("CLIENT: failed to open tab %q: %v", u, err)
		}
	}

	return runSession(opt)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, _, err := config.Ensure(abs)
	return cfg, err
}

func runSession(opt session.Options) int {
	sess, err := session.New(opt)
	if err != nil {
		log.Printf("CLIENT: failed to construct session: %v", err)
		return exitFailure
	}

	printSessionBanner(opt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("CLIENT: shutting down gracefully...")
		cancel()
	}()

	if err := sess.Connect(ctx); err != nil {
		log.Printf("CLIENT: connect failed: %v", err)
		return exitFailure
	}
	defer sess.Close()

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("CLIENT: session loop failed: %v", err)
		return exitFailure
	}
	return exitOK
}

func showUsage() {
	fmt.Println("beamclient - real-time remote desktop streaming client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  beamclient -server-ip <ip> -private-key <hex> [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -server-ip string     IP address of the host to connect to (required)")
	fmt.Println("  -user string          user identifier for this session")
	fmt.Println("  -name string          window title")
	fmt.Println("  -private-key string   hex-encoded 16-byte pre-shared session key")
	fmt.Println("  -new-tab-url string   open an extra tab at startup (repeatable)")
	fmt.Println("  -config string        path to a JSON config file")
	fmt.Println("  -help                 show this help message")
	fmt.Println("  -version              show version information")
}

func printSessionBanner(opt session.Options) {
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Printf("beamclient connecting to %s\n", opt.ServerIP)
	if opt.User != "" {
		fmt.Printf("user:   %s\n", opt.User)
	}
	fmt.Printf("window: %s\n", opt.WindowName)
	if len(opt.NewTabURLs) > 0 {
		fmt.Printf("tabs:   %d requested\n", len(opt.NewTabURLs))
	}
	fmt.Println("Starting session... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
}
