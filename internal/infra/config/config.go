package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxUploadBytesMb int64 `yaml:"max_upload_mb"`

	Snowflake Snowflake `yaml:"snowflake"`
	Executor  Executor  `yaml:"executor"`
	MQ        MQ        `yaml:"mq"`
	Redis     Redis     `yaml:"redis"`
	MinIO     MinIO     `yaml:"minio"`
}

type Snowflake struct {
	DatacenterID uint64 `yaml:"datacenter_id"`
	WorkerID     uint64 `yaml:"worker_id"`
}

type Executor struct {
	PoolSize      int `yaml:"pool_size"`
	QueueCapacity int `yaml:"queue_capacity"`
}

// MQ selects the transport driver and names the job and result channels.
// Topics and tags follow the worker's contract: the job goes out on
// job_topic:job_tag, the result comes back on result_topic:result_tag within
// result_group.
type MQ struct {
	Driver string `yaml:"driver"` // "rocketmq" or "nats"

	NameServer    string `yaml:"name_server"` // rocketmq
	URL           string `yaml:"url"`         // nats
	MaxReconnects int    `yaml:"max_reconnects"`

	JobTopic      string `yaml:"job_topic"`
	JobTag        string `yaml:"job_tag"`
	ProducerGroup string `yaml:"producer_group"`

	ResultTopic string `yaml:"result_topic"`
	ResultTag   string `yaml:"result_tag"`
	ResultGroup string `yaml:"result_group"`

	Consumers int `yaml:"consumers"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	if cfg.MQ.Driver != "rocketmq" && cfg.MQ.Driver != "nats" {
		log.Fatalf("config: mq.driver must be rocketmq or nats, got %q", cfg.MQ.Driver)
	}
	if cfg.MQ.Driver == "rocketmq" && cfg.MQ.NameServer == "" {
		log.Fatalf("config: mq.name_server is empty")
	}
	if cfg.MQ.Driver == "nats" && cfg.MQ.URL == "" {
		log.Fatalf("config: mq.url is empty")
	}
	if cfg.MQ.JobTopic == "" || cfg.MQ.ResultTopic == "" {
		log.Fatalf("config: mq job_topic and result_topic are required")
	}
	if cfg.MQ.ResultGroup == "" {
		log.Fatalf("config: mq.result_group is empty")
	}
	if cfg.MQ.Consumers <= 0 {
		cfg.MQ.Consumers = 4
	}
	if cfg.Snowflake.DatacenterID > 31 || cfg.Snowflake.WorkerID > 31 {
		log.Fatalf("config: snowflake identity must be in [0,31]")
	}
	if cfg.Executor.PoolSize <= 0 {
		cfg.Executor.PoolSize = 8
	}
	if cfg.Executor.QueueCapacity <= 0 {
		cfg.Executor.QueueCapacity = 256
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytesMb <= 0 {
		cfg.MaxUploadBytesMb = 100
	}

	return &cfg
}
