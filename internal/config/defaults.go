package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/simgroup/data/db/simgroup.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/simgroup/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIModel == "" {
		cfg.Embedding.APIModel = "text-embedding-3-small"
	}
	if cfg.Embedding.APIBatchSize == 0 {
		cfg.Embedding.APIBatchSize = 64
	}
	if cfg.Grouping.Threshold == nil {
		t := DefaultThreshold
		cfg.Grouping.Threshold = &t
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceSQLite
	}
	if cfg.Source.TextFields == nil {
		cfg.Source.TextFields = []string{"name", "description", "address", "city", "category"}
	}
	if cfg.Publish.Sink == "" {
		cfg.Publish.Sink = SinkStdout
	}
	if cfg.Publish.MessageType == "" {
		cfg.Publish.MessageType = "similarity"
	}
	if cfg.Publish.BatchSize == 0 {
		cfg.Publish.BatchSize = 50
	}
	if cfg.Publish.RedisAddr == "" {
		cfg.Publish.RedisAddr = "localhost:6379"
	}
	if cfg.Publish.RedisKey == "" {
		cfg.Publish.RedisKey = "simgroup:updates"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
