package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Elastic  ElasticConfig
	Qdrant   QdrantConfig
	Vector   VectorConfig
	AI       AIConfig
	OCR      OCRConfig
	Chunking ChunkingConfig
	Upload   UploadConfig
	Storage  StorageConfig
	Worker   WorkerConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string
	Version  string
	Debug    bool
	LogLevel string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string // postgres / sqlite
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	Path         string // sqlite 文件路径
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// QdrantConfig Qdrant配置
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	Backend    string // memory / elasticsearch / qdrant / pgvector
	Collection string
	Dimension  int
}

// AIConfig AI配置
type AIConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	Alibaba   AlibabaConfig
	DeepSeek  DeepSeekConfig
	Embedding EmbeddingConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// AlibabaConfig 阿里云配置
type AlibabaConfig struct {
	AccessKeySecret string
	Model           string
	Timeout         int
}

// DeepSeekConfig DeepSeek配置
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	Provider    string // dashscope / openai / ollama
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     int
	BatchSize   int
	Concurrency int
}

// OCRConfig 图片文字识别配置
type OCRConfig struct {
	Enabled         bool
	CredentialsFile string
}

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Encoding     string
}

// UploadConfig 上传配置
type UploadConfig struct {
	MaxFileSizeMB int
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Type  string // local / minio
	Local LocalStorageConfig
	MinIO MinIOStorageConfig
}

// LocalStorageConfig 本地存储配置
type LocalStorageConfig struct {
	BasePath string
}

// MinIOStorageConfig MinIO 存储配置
type MinIOStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// WorkerConfig 后台任务配置
type WorkerConfig struct {
	Enabled       bool
	Concurrency   int
	TaskTimeLimit int    // 秒
	Queue         string // memory / redis
	TaskTTL       int    // 秒
}

// Load 加载配置
// 优先读取 .env，然后是 YAML 文件，最后由 DOCSEARCH_ 前缀的环境变量覆盖
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// 环境变量
	v.SetEnvPrefix("DOCSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunkSize must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunkOverlap must be in [0, chunkSize)")
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector.dimension must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	switch c.Worker.Queue {
	case "", "memory":
		// 内存队列只能由本进程消费，关闭 worker 后上传会把队列写满
		if !c.Worker.Enabled {
			return fmt.Errorf("worker.queue=memory requires worker.enabled=true")
		}
	case "redis":
	default:
		return fmt.Errorf("worker.queue must be memory or redis, got %q", c.Worker.Queue)
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxFileSize 最大上传字节数
func (c *UploadConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// TimeLimit 单次处理的硬超时
func (c *WorkerConfig) TimeLimit() time.Duration {
	return time.Duration(c.TaskTimeLimit) * time.Second
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "docsearch")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.logLevel", "info")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 120)

	// Database
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./docsearch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "docsearch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.indexPrefix", "docsearch")

	// Qdrant
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)

	// Vector
	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.collection", "document_embeddings")
	v.SetDefault("vector.dimension", 768)

	// AI
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.deepseek.baseUrl", "https://api.deepseek.com/v1")
	v.SetDefault("ai.embedding.provider", "dashscope")
	v.SetDefault("ai.embedding.model", "text-embedding-v3")
	v.SetDefault("ai.embedding.timeout", 60)
	v.SetDefault("ai.embedding.batchSize", 10)
	v.SetDefault("ai.embedding.concurrency", 4)

	// Chunking
	v.SetDefault("chunking.chunkSize", 1000)
	v.SetDefault("chunking.chunkOverlap", 200)
	v.SetDefault("chunking.encoding", "cl100k_base")

	// Upload
	v.SetDefault("upload.maxFileSizeMB", 50)

	// Storage
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.basePath", "./uploads")
	v.SetDefault("storage.minio.bucket", "docsearch")

	// Worker
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.taskTimeLimit", 3600)
	v.SetDefault("worker.queue", "memory")
	v.SetDefault("worker.taskTTL", 86400)
}
