package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	hypersync "hypersync-go"
)

// Dump a block range from an archive into per-kind parquet files.
type toolConfig struct {
	URL                 string  `yaml:"url"`
	BearerToken         string  `yaml:"bearer_token"`
	FromBlock           uint64  `yaml:"from_block"`
	ToBlock             *uint64 `yaml:"to_block"`
	Address             string  `yaml:"address"`
	Topic0              string  `yaml:"topic0"`
	OutDir              string  `yaml:"out_dir"`
	Concurrency         int     `yaml:"concurrency"`
	BatchSize           uint64  `yaml:"batch_size"`
	MinBatchSize        uint64  `yaml:"min_batch_size"`
	MaxBatchSize        uint64  `yaml:"max_batch_size"`
	ResponseSizeCeiling uint64  `yaml:"response_size_ceiling"`
	MaxNumRetries       int     `yaml:"max_num_retries"`
}

func loadConfig(path string) (*toolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg toolConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	// Unknown options in the config file are rejected, not silently dropped.
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func main() {
	var (
		configPath string
		outDir     string
		fromBlock  uint64
		toBlock    uint64
	)
	flag.StringVar(&configPath, "config", "", "path to yaml config (optional)")
	flag.StringVar(&outDir, "out", "./data", "output directory for parquet files")
	flag.Uint64Var(&fromBlock, "from", 0, "start block (inclusive)")
	flag.Uint64Var(&toBlock, "to", 0, "end block (exclusive, 0 = archive height)")
	flag.Parse()

	cfg := &toolConfig{}
	if configPath != "" {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if fromBlock > 0 {
		cfg.FromBlock = fromBlock
	}
	if toBlock > 0 {
		cfg.ToBlock = &toBlock
	}
	if outDir != "" && cfg.OutDir == "" {
		cfg.OutDir = outDir
	}

	client, err := hypersync.NewClient(hypersync.ClientConfig{
		URL:           cfg.URL,
		BearerToken:   cfg.BearerToken,
		MaxNumRetries: cfg.MaxNumRetries,
	})
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	query := buildQuery(cfg)
	stream := hypersync.StreamConfig{
		Concurrency:         cfg.Concurrency,
		BatchSize:           cfg.BatchSize,
		MinBatchSize:        cfg.MinBatchSize,
		MaxBatchSize:        cfg.MaxBatchSize,
		ResponseSizeCeiling: cfg.ResponseSizeCeiling,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := client.CollectParquet(ctx, cfg.OutDir, &query, stream); err != nil {
		log.Fatalf("collect parquet: %v", err)
	}
	log.Printf("done in %s, output in %s", time.Since(start).Round(time.Millisecond), cfg.OutDir)
}

func buildQuery(cfg *toolConfig) hypersync.Query {
	if cfg.Address == "" {
		return hypersync.PresetQueryBlocksAndTransactions(cfg.FromBlock, cfg.ToBlock)
	}
	address := common.HexToAddress(cfg.Address)
	if cfg.Topic0 != "" {
		return hypersync.PresetQueryLogsOfEvent(cfg.FromBlock, cfg.ToBlock, address, common.HexToHash(cfg.Topic0))
	}
	return hypersync.PresetQueryLogs(cfg.FromBlock, cfg.ToBlock, address)
}
