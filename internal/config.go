package internal

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tuannm99/novagather/internal/logging"
)

type NodeAddr struct {
	ID   string `mapstructure:"id"`
	Addr string `mapstructure:"addr"`
}

type NovaGatherConfig struct {
	AppName string `mapstructure:"app_name"`

	Log logging.Config `mapstructure:"log"`

	// Node is the data-holding side: it executes queries and answers with
	// encoded DataTables.
	Node struct {
		ID           string `mapstructure:"id"`
		Addr         string `mapstructure:"addr"`
		Rows         int    `mapstructure:"rows"`
		Compress     bool   `mapstructure:"compress"`
		WireVersion  int32  `mapstructure:"wire_version"`
		MaxFrameSize int    `mapstructure:"max_frame_size"`
	} `mapstructure:"node"`

	// Broker scatters queries to Nodes and reduces the answers.
	Broker struct {
		Nodes       []NodeAddr    `mapstructure:"nodes"`
		NodeTimeout time.Duration `mapstructure:"node_timeout"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		MetricsAddr string        `mapstructure:"metrics_addr"`
	} `mapstructure:"broker"`

	Stream struct {
		Path  string `mapstructure:"path"`
		Topic string `mapstructure:"topic"`
	} `mapstructure:"stream"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novagather")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("node.addr", "127.0.0.1:8866")
	v.SetDefault("node.rows", 8)
	v.SetDefault("node.wire_version", 2)
	v.SetDefault("node.max_frame_size", 8<<20)
	v.SetDefault("broker.node_timeout", "2s")
	v.SetDefault("broker.dial_timeout", "1s")
	v.SetDefault("stream.topic", "events")
}

// LoadConfig reads a YAML file. An empty path yields the defaults.
func LoadConfig(path string) (*NovaGatherConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaGatherConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Broker.NodeTimeout <= 0 {
		return nil, fmt.Errorf("config: broker.node_timeout must be positive, got %s", cfg.Broker.NodeTimeout)
	}
	for i, n := range cfg.Broker.Nodes {
		if n.ID == "" || n.Addr == "" {
			return nil, fmt.Errorf("config: broker.nodes[%d] needs id and addr", i)
		}
	}

	return &cfg, nil
}
