package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port" validate:"gte=0,lte=65535"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Queue struct {
		Size         int `yaml:"size" validate:"gte=0"`
		Workers      int `yaml:"workers" validate:"gte=0"`
		DrainTimeout int `yaml:"drainTimeout" validate:"gte=0"` // seconds
	} `yaml:"queue"`

	WhatsApp struct {
		AccessToken   string `yaml:"accessToken"`
		APIVersion    string `yaml:"apiVersion"`
		PhoneNumberID string `yaml:"phoneNumberId"`
		AppSecret     string `yaml:"appSecret"`
		VerifyToken   string `yaml:"verifyToken"`
		MediaBaseURL  string `yaml:"mediaBaseUrl" validate:"omitempty,url"`
		RetainMedia   bool   `yaml:"retainMedia"`
		RetentionDir  string `yaml:"retentionDir"`
	} `yaml:"whatsapp"`

	Model struct {
		Endpoint string   `yaml:"endpoint" validate:"omitempty,url"`
		Command  []string `yaml:"command"`
	} `yaml:"model"`

	OpenAI struct {
		APIKey  string   `yaml:"apiKey"`
		Model   string   `yaml:"model"`
		Classes []string `yaml:"classes"`
	} `yaml:"openai"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	RateLimit struct {
		Enabled    bool `yaml:"enabled"`
		Capacity   int  `yaml:"capacity" validate:"gte=0"`
		RefillRate int  `yaml:"refillRate" validate:"gte=0"` // tokens per second
	} `yaml:"rateLimit"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
}

// Load baca file config.yaml, lalu env override untuk secrets
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, uerr)
		}
	case os.IsNotExist(err):
		// all settings have workable defaults, the file is optional
	default:
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if verr := validator.New().Struct(&cfg); verr != nil {
		return nil, fmt.Errorf("config validation: %w", verr)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/analyses.db"
	}
	if c.WhatsApp.APIVersion == "" {
		c.WhatsApp.APIVersion = "v17.0"
	}
	if c.Queue.Size == 0 {
		c.Queue.Size = 64
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.DrainTimeout == 0 {
		c.Queue.DrainTimeout = 30
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 30
	}
	if c.RateLimit.RefillRate == 0 {
		c.RateLimit.RefillRate = 10
	}
}

// applyEnv lets deployment secrets win over anything in the file.
func (c *Config) applyEnv() {
	setIfEnv(&c.Database.Path, "DATABASE_PATH")
	setIfEnv(&c.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setIfEnv(&c.WhatsApp.AppSecret, "META_APP_SECRET")
	setIfEnv(&c.WhatsApp.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setIfEnv(&c.WhatsApp.RetentionDir, "WHATSAPP_RETENTION_DIR")
	setIfEnv(&c.OpenAI.APIKey, "OPENAI_API_KEY")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
