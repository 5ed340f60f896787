package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/pinbridge/bridge"
	"github.com/wippyai/pinbridge/config"
	"github.com/wippyai/pinbridge/trace"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML configuration")
		dumpConfig  = flag.Bool("dump-config", false, "Print the effective configuration and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dumpConfig {
		if err := cfg.Dump(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: pinstat [-config file.toml] <trace.yaml>...")
		fmt.Fprintln(os.Stderr, "       pinstat [-config file.toml] -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       pinstat [-config file.toml] -dump-config")
		os.Exit(1)
	}

	code, err := run(cfg, flag.Args(), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// run replays every script in order against one bridge and prints the
// pin table. The exit code is 2 when anything leaked.
func run(cfg *config.Config, scripts []string, out io.Writer) (int, error) {
	ctx := context.Background()

	log, err := cfg.Logger()
	if err != nil {
		return 1, err
	}
	defer log.Sync()

	foreign, closeForeign, err := openForeign(ctx, &cfg.Foreign, log)
	if err != nil {
		return 1, err
	}
	defer closeForeign()

	b, err := bridge.New(cfg.BridgeConfig(foreign, log.Named("bridge")))
	if err != nil {
		return 1, err
	}
	defer b.Close()

	replayer := trace.NewReplayer(b, log.Named("trace"))
	leaked := false
	for _, path := range scripts {
		s, err := trace.LoadFile(path)
		if err != nil {
			return 1, err
		}
		rep, err := replayer.Run(s)
		if err != nil {
			log.Error("replay failed", zap.String("script", path), zap.Error(err))
			fmt.Fprintln(out, renderReport(path, rep))
			return 1, err
		}
		fmt.Fprintln(out, renderReport(path, rep))
		leaked = leaked || rep.Leaked()
	}

	fmt.Fprintln(out, renderTable("Protected", b.Protected()))
	fmt.Fprintln(out, renderTable("Externals", b.Externals()))

	if leaked {
		return 2, nil
	}
	return 0, nil
}
