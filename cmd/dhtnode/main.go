package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mod/kadcore/internal/kademlia"
)

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	return cfg.Build()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "UDP listen address for this node")
	bootstrap := flag.String("bootstrap", "", "comma-separated host:port bootstrap seeds")
	k := flag.Int("k", kademlia.DefaultConfig().K, "bucket size / replication width")
	alpha := flag.Int("alpha", kademlia.DefaultConfig().Alpha, "lookup concurrency")
	metricsAddr := flag.String("metrics-addr", "", "optional host:port to serve Prometheus /metrics on")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	cfg := kademlia.DefaultConfig()
	cfg.ListenAddr = *addr
	cfg.K = *k
	cfg.Alpha = *alpha
	cfg.MetricsAddr = *metricsAddr
	cfg.LogLevel = *logLevel
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(2)
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(2)
	}
	defer log.Sync()

	node, err := kademlia.NewNode(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR starting node:", err)
		os.Exit(3)
	}
	defer node.Close()

	fmt.Printf("node up: id=%s addr=%s\n", node.ID().String(), node.Addr())

	if seeds := strings.TrimSpace(*bootstrap); seeds != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := node.Bootstrap(ctx, strings.Split(seeds, ","))
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "WARN: bootstrap failed:", err)
		} else {
			fmt.Printf("bootstrapped to %s\n", seeds)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("commands: put <text> | get <40-hex-key> | exit")
	runREPL(ctx, node, os.Stdin, os.Stdout)
}

// runREPL is a minimal line-oriented shell over Node: put stores a value and
// prints its derived key, get fetches by key, exit (or ctx cancellation)
// ends the loop.
func runREPL(ctx context.Context, node *kademlia.Node, in *os.File, out *os.File) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, node, out, line) {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, node *kademlia.Node, out *os.File, line string) bool {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return true
	}
	switch fields[0] {
	case "exit", "quit":
		return false
	case "put":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: put <text>")
			return true
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		key, stored, err := node.Put(reqCtx, []byte(fields[1]))
		cancel()
		if err != nil {
			fmt.Fprintln(out, "ERR:", err)
			return true
		}
		fmt.Fprintf(out, "stored key=%s replicas=%d\n", key, stored)
	case "get":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: get <40-hex-key>")
			return true
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		value, err := node.Get(reqCtx, strings.TrimSpace(fields[1]))
		cancel()
		if err != nil {
			fmt.Fprintln(out, "ERR:", err)
			return true
		}
		fmt.Fprintf(out, "%s\n", value)
	default:
		fmt.Fprintln(out, "commands: put <text> | get <40-hex-key> | exit")
	}
	return true
}
