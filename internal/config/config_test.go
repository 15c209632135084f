package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ========== Load 测试 ==========

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Chunking.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want 1000", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("ChunkOverlap = %d, want 200", cfg.Chunking.ChunkOverlap)
	}
	if cfg.Vector.Dimension != 768 {
		t.Errorf("Vector.Dimension = %d, want 768", cfg.Vector.Dimension)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Worker.Concurrency = %d, want 4", cfg.Worker.Concurrency)
	}
	if cfg.Worker.TimeLimit() != time.Hour {
		t.Errorf("Worker.TimeLimit() = %v, want 1h", cfg.Worker.TimeLimit())
	}
	if cfg.Upload.MaxFileSize() != 50*1024*1024 {
		t.Errorf("Upload.MaxFileSize() = %d, want %d", cfg.Upload.MaxFileSize(), 50*1024*1024)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
chunking:
  chunkSize: 512
  chunkOverlap: 64
vector:
  backend: qdrant
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Chunking.ChunkSize != 512 || cfg.Chunking.ChunkOverlap != 64 {
		t.Errorf("Chunking = %+v, want 512/64", cfg.Chunking)
	}
	if cfg.Vector.Backend != "qdrant" {
		t.Errorf("Vector.Backend = %q, want qdrant", cfg.Vector.Backend)
	}
	// 未在文件中出现的键保留默认值
	if cfg.Vector.Dimension != 768 {
		t.Errorf("Vector.Dimension = %d, want 768", cfg.Vector.Dimension)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCSEARCH_WORKER_CONCURRENCY", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("Worker.Concurrency = %d, want 8", cfg.Worker.Concurrency)
	}
}

// ========== Validate 测试 ==========

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Chunking: ChunkingConfig{ChunkSize: 100, ChunkOverlap: 10},
			Vector:   VectorConfig{Dimension: 8},
			Worker:   WorkerConfig{Enabled: true, Concurrency: 1, Queue: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero chunk size", mutate: func(c *Config) { c.Chunking.ChunkSize = 0 }, wantErr: true},
		{name: "overlap equals size", mutate: func(c *Config) { c.Chunking.ChunkOverlap = 100 }, wantErr: true},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.ChunkOverlap = -1 }, wantErr: true},
		{name: "zero dimension", mutate: func(c *Config) { c.Vector.Dimension = 0 }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, wantErr: true},
		{name: "memory queue without workers", mutate: func(c *Config) { c.Worker.Enabled = false }, wantErr: true},
		{name: "default queue without workers", mutate: func(c *Config) {
			c.Worker.Enabled = false
			c.Worker.Queue = ""
		}, wantErr: true},
		{name: "redis queue without workers", mutate: func(c *Config) {
			c.Worker.Enabled = false
			c.Worker.Queue = "redis"
		}, wantErr: false},
		{name: "unknown queue", mutate: func(c *Config) { c.Worker.Queue = "kafka" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := &DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
