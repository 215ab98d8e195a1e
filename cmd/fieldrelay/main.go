package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fieldrelay/internal/config"
	"fieldrelay/internal/web"
)

func main() {
	var configPath string
	var summarize string
	flag.StringVar(&configPath, "config", "./configs/fieldrelay.yaml", "Path to YAML config")
	flag.StringVar(&summarize, "summarize", "", "Summarize a captured NMEA log (\"-\" for stdin) and exit")
	flag.Parse()

	if summarize != "" {
		if err := runSummary(os.Stdout, summarize); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer rt.Close()

	log.Printf("fieldrelay starting")
	log.Printf("gps source=%s device=%s sinks=%v", cfg.GPS.Source, cfg.GPS.Device, rt.sinkNames)

	if err := rt.Start(ctx, logs); err != nil {
		log.Fatalf("start failed: %v", err)
	}

	<-ctx.Done()
	log.Printf("fieldrelay stopping")
}

func runSummary(w io.Writer, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	s, err := summarizeNMEALog(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, s.String())
	return err
}
