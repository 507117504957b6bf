// knet-echo — a tiny demonstration CLI for the knet reactor.
//
// It runs either as a listening echo server (-role=server) or as a client
// that sends one line and logs when a reply comes back (-role=client). Both
// roles share a single Loop; the server additionally attaches a Balancer
// over a small worker-loop pool so accepted connections spread out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/tcploop/knet"
	"github.com/tcploop/knet/internal/klog"
	"github.com/tcploop/knet/internal/stats"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	role := flag.String("role", "", "Role: server or client")
	addr := flag.String("addr", "127.0.0.1", "Address to bind (server) or connect to (client)")
	port := flag.Int("port", 0, "Port: server binds here (0 picks a free port), client connects here")
	workers := flag.Int("workers", 4, "Server only: number of worker loops behind the balancer")
	message := flag.String("message", "hello, knet", "Client only: line to send")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		klog.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("knet-echo — v%s", version))
	pterm.Println()

	switch *role {
	case "server":
		runServer(ctx, *addr, *port, *workers)
	case "client":
		if *port < 1 || *port > 65535 {
			klog.Error("missing or invalid -port for client role")
			os.Exit(1)
		}
		runClient(ctx, *addr, *port, *message)
	default:
		klog.Error("invalid -role: must be 'server' or 'client'")
		os.Exit(1)
	}
}

// runServer accepts connections on a dedicated accept loop and echoes
// whatever each one sends, load-balanced across workers worker loops.
func runServer(ctx context.Context, addr string, port, workers int) {
	acceptLoop, err := knet.NewLoop(knet.Config{})
	if err != nil {
		klog.Error("failed to create accept loop: %v", err)
		os.Exit(1)
	}

	workerLoops := make([]*knet.Loop, workers)
	sources := make([]stats.Source, 0, workers+1)
	sources = append(sources, stats.Source{Label: "accept", Counters: acceptLoop.Stats()})
	for i := range workerLoops {
		l, err := knet.NewLoop(knet.Config{})
		if err != nil {
			klog.Error("failed to create worker loop %d: %v", i, err)
			os.Exit(1)
		}
		workerLoops[i] = l
		sources = append(sources, stats.Source{Label: fmt.Sprintf("worker-%d", i), Counters: l.Stats()})
		go l.Run(ctx)
	}
	acceptLoop.SetBalancer(knet.NewBalancer(workerLoops...))
	stats.StartReporter(ctx, 10*time.Second, sources...)

	echo := func(ref *knet.ChannelRef, event knet.Event) {
		switch event {
		case knet.EventAccept:
			peer, _ := ref.PeerAddress()
			klog.Info("accepted connection from %v (migrated=%v)", peer, ref.Migrated())
		case knet.EventRecv:
			buf := make([]byte, ref.Buffered())
			ref.Read(buf)
			klog.Debug("echoing %d byte(s)", len(buf))
			ref.Write(buf)
		case knet.EventClose:
			klog.Info("connection closed")
		}
	}

	ref, err := acceptLoop.Listen(addr, port, 128, knet.ChannelRefOptions{}, echo)
	if err != nil {
		klog.Error("listen failed: %v", err)
		os.Exit(1)
	}
	local, _ := ref.LocalAddress()
	klog.Info("listening on %v with %d worker loop(s)", local, workers)

	acceptLoop.Run(ctx)
}

// runClient connects once, sends message, waits briefly for a reply, then
// exits.
func runClient(ctx context.Context, addr string, port int, message string) {
	loop, err := knet.NewLoop(knet.Config{})
	if err != nil {
		klog.Error("failed to create loop: %v", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	cb := func(ref *knet.ChannelRef, event knet.Event) {
		switch event {
		case knet.EventConnect:
			ref.Write([]byte(strings.TrimSuffix(message, "\n") + "\n"))
		case knet.EventRecv:
			klog.Info("server replied")
			ref.Close()
		case knet.EventClose:
			close(done)
		}
	}

	if _, err := loop.Connect(addr, port, knet.ChannelRefOptions{ConnectDeadline: 5 * time.Second}, cb); err != nil {
		klog.Error("connect failed: %v", err)
		os.Exit(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		loop.Run(runCtx)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		klog.Warning("timed out waiting for a reply")
	}
	cancel()
}
