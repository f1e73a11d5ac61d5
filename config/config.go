package config

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	RedisURL    string        `yaml:"redis_url"`
	Engine      Engine        `yaml:"engine"`
	Source      Source        `yaml:"source"`
	Pipeline    Pipeline      `yaml:"pipeline"`
	Gateway     Gateway       `yaml:"gateway"`
	Sweeper     Sweeper       `yaml:"sweeper"`
	Client      Client        `yaml:"client"`
}

type App struct {
	Environment string `yaml:"environment"`
}

type Server struct {
	HttpPort    string `yaml:"http_port"`
	Workers     int    `yaml:"workers"`
	MetricsPort string `yaml:"metrics_port"`
	CORSOrigins string `yaml:"cors_origins"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
	QueueName    string `json:"queue_name"`
	RoutingKey   string `json:"routing_key"`
	MaxRetries   int    `json:"max_retries"`
}

type Engine struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Source struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	MaxComments int    `yaml:"max_comments"`
}

type Pipeline struct {
	MinComments int `yaml:"min_comments"`
}

type Gateway struct {
	ReuseCompleted bool `yaml:"reuse_completed"`
}

type Sweeper struct {
	Interval     time.Duration `yaml:"interval"`
	Lease        time.Duration `yaml:"lease"`
	OrphanGrace  time.Duration `yaml:"orphan_grace"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`
}

type Client struct {
	APIURL       string        `yaml:"api_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 4)
	v.SetDefault("server.metrics_port", "9091")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("rabbitmq_exchange", "analysis_exchange")
	v.SetDefault("rabbitmq_queue", "analysis_queue")
	v.SetDefault("rabbitmq_routing_key", "analysis.request")
	v.SetDefault("rabbitmq_max_retries", 5)
	v.SetDefault("minio.url", "localhost:9000")
	v.SetDefault("minio.bucket", "comment-snapshots")
	v.SetDefault("engine.url", "http://localhost:8000")
	v.SetDefault("engine.timeout", 2*time.Minute)
	v.SetDefault("source.max_comments", 500)
	v.SetDefault("pipeline.min_comments", 3)
	v.SetDefault("gateway.reuse_completed", false)
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.lease", 15*time.Minute)
	v.SetDefault("sweeper.orphan_grace", 2*time.Minute)
	v.SetDefault("sweeper.queue_timeout", time.Hour)
	v.SetDefault("client.api_url", "http://localhost:8080")
	v.SetDefault("client.poll_interval", 1500*time.Millisecond)
}

// Load reads config.yaml from path, if present, with environment variables
// taking precedence (minio.url is overridden by MINIO_URL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", v.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host:         v.GetString("rabbitmq_host"),
		Port:         v.GetInt("rabbitmq_port"),
		User:         v.GetString("rabbitmq_user"),
		Pass:         v.GetString("rabbitmq_pass"),
		Kind:         v.GetString("rabbitmq_kind"),
		ExchangeName: v.GetString("rabbitmq_exchange"),
		QueueName:    v.GetString("rabbitmq_queue"),
		RoutingKey:   v.GetString("rabbitmq_routing_key"),
		MaxRetries:   v.GetInt("rabbitmq_max_retries"),
	}

	minioClient, err := minio.New(v.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(v.GetString("minio.access_id"), v.GetString("minio.secret_access_key"), ""),
		Secure: v.GetBool("minio.secure"),
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: v.GetString("minio.bucket"),
		App: App{
			Environment: v.GetString("app.environment"),
		},
		Server: Server{
			HttpPort:    v.GetString("server.port"),
			Workers:     v.GetInt("server.workers"),
			MetricsPort: v.GetString("server.metrics_port"),
			CORSOrigins: v.GetString("server.cors_origins"),
		},
		DB:       db,
		Queue:    rabbitmq,
		Storage:  minioClient,
		RedisURL: v.GetString("redis.url"),
		Engine: Engine{
			URL:     v.GetString("engine.url"),
			Timeout: v.GetDuration("engine.timeout"),
		},
		Source: Source{
			APIKey:      v.GetString("source.api_key"),
			BaseURL:     v.GetString("source.base_url"),
			MaxComments: v.GetInt("source.max_comments"),
		},
		Pipeline: Pipeline{
			MinComments: v.GetInt("pipeline.min_comments"),
		},
		Gateway: Gateway{
			ReuseCompleted: v.GetBool("gateway.reuse_completed"),
		},
		Sweeper: Sweeper{
			Interval:     v.GetDuration("sweeper.interval"),
			Lease:        v.GetDuration("sweeper.lease"),
			OrphanGrace:  v.GetDuration("sweeper.orphan_grace"),
			QueueTimeout: v.GetDuration("sweeper.queue_timeout"),
		},
		Client: Client{
			APIURL:       v.GetString("client.api_url"),
			PollInterval: v.GetDuration("client.poll_interval"),
		},
	}, nil
}
