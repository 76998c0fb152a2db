package hypersync

// ClientConfig configures a Client. Zero values fall back to defaults in
// NewClient.
type ClientConfig struct {
	// Base URL of the archive. Default https://eth.hypersync.xyz.
	URL string
	// Optional bearer token sent as Authorization header.
	BearerToken string
	// Per-request HTTP timeout. Default 30000.
	HTTPReqTimeoutMillis uint64
	// Number of attempts before a remote call fails for good. Default 12.
	MaxNumRetries int
	// Initial backoff in milliseconds. Default 200.
	RetryBaseMs uint64
	// Added to the backoff after every failure, and the upper bound of the
	// uniform jitter. Default 500.
	RetryBackoffMs uint64
	// Cap for the backoff base. Default 5000.
	RetryCeilingMs uint64
	// Optional client-wide request rate limit. Zero disables limiting.
	MaxRequestsPerSecond float64
}

const (
	defaultURL                  = "https://eth.hypersync.xyz"
	defaultHTTPReqTimeoutMillis = 30_000
	defaultMaxNumRetries        = 12
	defaultRetryBaseMs          = 200
	defaultRetryBackoffMs       = 500
	defaultRetryCeilingMs       = 5_000
)

// StreamConfig configures one streaming operation.
type StreamConfig struct {
	// Max in-flight sub-queries. Default 10.
	Concurrency int
	// Initial block span of each sub-query. Default 1000.
	BatchSize uint64
	// Bounds for adaptive sizing. Defaults 200 and 200000, widened to include
	// BatchSize when it lies outside them.
	MinBatchSize uint64
	MaxBatchSize uint64
	// Soft response size target in bytes. The step grows while responses stay
	// well under it and shrinks when they exceed it. Zero disables adaptation.
	ResponseSizeCeiling uint64
	// Server-side log decoding. Forbidden on the typed and event paths; the
	// consumer is expected to decode logs directly.
	EventSignature string
	// Output column renaming/retyping. Forbidden on the typed and event paths.
	ColumnMapping *ColumnMapping
	// Render binary columns of mapped output as hex. Typed rows always render
	// hex, so this only matters together with ColumnMapping.
	HexOutput bool
}

const (
	defaultConcurrency  = 10
	defaultBatchSize    = 1000
	defaultMinBatchSize = 200
	defaultMaxBatchSize = 200_000
)

// ColumnMapping maps output column names to target data types, per kind.
type ColumnMapping struct {
	Block       map[string]string `json:"block,omitempty" yaml:"block,omitempty"`
	Transaction map[string]string `json:"transaction,omitempty" yaml:"transaction,omitempty"`
	Log         map[string]string `json:"log,omitempty" yaml:"log,omitempty"`
	Trace       map[string]string `json:"trace,omitempty" yaml:"trace,omitempty"`
	DecodedLog  map[string]string `json:"decoded_log,omitempty" yaml:"decoded_log,omitempty"`
}

func (cfg StreamConfig) withDefaults() StreamConfig {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MinBatchSize == 0 {
		cfg.MinBatchSize = min(defaultMinBatchSize, cfg.BatchSize)
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = max(defaultMaxBatchSize, cfg.BatchSize)
	}
	if cfg.BatchSize < cfg.MinBatchSize {
		cfg.BatchSize = cfg.MinBatchSize
	}
	if cfg.BatchSize > cfg.MaxBatchSize {
		cfg.BatchSize = cfg.MaxBatchSize
	}
	return cfg
}

func (cfg StreamConfig) validate() error {
	if cfg.Concurrency < 0 {
		return &ConfigError{Msg: "config.concurrency can't be negative"}
	}
	if cfg.MinBatchSize != 0 && cfg.MaxBatchSize != 0 && cfg.MinBatchSize > cfg.MaxBatchSize {
		return &ConfigError{Msg: "config.min_batch_size can't exceed config.max_batch_size"}
	}
	return nil
}

// checkSimpleStreamParams rejects options that are only meaningful when the
// consumer handles columnar decoding directly.
func checkSimpleStreamParams(cfg StreamConfig) error {
	if cfg.EventSignature != "" {
		return &ConfigError{Msg: "config.event_signature can't be passed to simple type function. User is expected to decode the logs using a decoder"}
	}
	if cfg.ColumnMapping != nil {
		return &ConfigError{Msg: "config.column_mapping can't be passed to simple type function. User is expected to map values manually"}
	}
	return nil
}

func validateQuery(query *Query) error {
	if query == nil {
		return &ConfigError{Msg: "query is nil"}
	}
	if query.ToBlock != nil && query.FromBlock > *query.ToBlock {
		return &ConfigError{Msg: "query.from_block can't exceed query.to_block"}
	}
	return nil
}
