package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/tuannm99/novagather/internal"
	"github.com/tuannm99/novagather/internal/logging"
	"github.com/tuannm99/novagather/internal/sample"
	"github.com/tuannm99/novagather/server/gatherwire"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	nodeID := flag.String("id", "", "node id (overrides node.id)")
	addr := flag.String("addr", "", "listen address (overrides node.addr)")
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		slog.Error("server: config", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}
	if *addr != "" {
		cfg.Node.Addr = *addr
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = cfg.Node.Addr
	}

	sc := gatherwire.ServerConfig{
		Addr:         cfg.Node.Addr,
		NodeID:       cfg.Node.ID,
		Compress:     cfg.Node.Compress,
		WireVersion:  cfg.Node.WireVersion,
		MaxFrameSize: cfg.Node.MaxFrameSize,
	}
	ex := &sample.Executor{Node: cfg.Node.ID, Rows: cfg.Node.Rows}
	if err := gatherwire.Run(sc, ex); err != nil {
		slog.Error("server: stopped", "err", err)
		os.Exit(1)
	}
}
