package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/logging"
	"github.com/MrEthical07/accessgate/mail/smtpmail"
	"github.com/spf13/viper"
)

// runtimeConfig holds process wiring: listeners, drivers and credentials.
// Engine behaviour lives in accessgate.Config, loaded from ConfigFile.
type runtimeConfig struct {
	ConfigFile      string
	HTTPAddr        string
	GRPCAddr        string
	RedisURL        string
	MonitorInterval time.Duration
	ShutdownTimeout time.Duration

	Store storeConfig
	Mail  mailConfig
	Audit auditConfig
	Log   logging.Config
}

type storeConfig struct {
	Driver           string // memory, postgres or mongo
	PostgresURL      string
	PostgresMaxConns int
	MongoURI         string
	MongoDatabase    string
}

type mailConfig struct {
	Driver           string // log, smtp or resend
	From             string
	Queue            bool
	QueueConcurrency int
	ResendAPIKey     string
	SMTP             smtpmail.Config
}

type auditConfig struct {
	Stdout       bool
	KafkaBrokers []string
	KafkaTopic   string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(accessgate.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("config_file", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("shutdown.timeout", 30*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.postgres_max_conns", 10)
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "accessgate")

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.queue", false)
	v.SetDefault("mail.queue_concurrency", 4)
	v.SetDefault("mail.resend_api_key", "")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.max_conns", 4)
	v.SetDefault("mail.smtp.send_timeout", 10*time.Second)
	v.SetDefault("mail.smtp.ssl", false)

	v.SetDefault("audit.stdout", false)
	v.SetDefault("audit.kafka_brokers", "")
	v.SetDefault("audit.kafka_topic", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	return v
}

func loadRuntime(v *viper.Viper) (runtimeConfig, error) {
	rc := runtimeConfig{
		ConfigFile:      v.GetString("config_file"),
		HTTPAddr:        v.GetString("http.addr"),
		GRPCAddr:        v.GetString("grpc.addr"),
		RedisURL:        v.GetString("redis.url"),
		MonitorInterval: v.GetDuration("monitor.interval"),
		ShutdownTimeout: v.GetDuration("shutdown.timeout"),
		Store: storeConfig{
			Driver:           strings.ToLower(v.GetString("store.driver")),
			PostgresURL:      v.GetString("store.postgres_url"),
			PostgresMaxConns: v.GetInt("store.postgres_max_conns"),
			MongoURI:         v.GetString("store.mongo_uri"),
			MongoDatabase:    v.GetString("store.mongo_database"),
		},
		Mail: mailConfig{
			Driver:           strings.ToLower(v.GetString("mail.driver")),
			From:             v.GetString("mail.from"),
			Queue:            v.GetBool("mail.queue"),
			QueueConcurrency: v.GetInt("mail.queue_concurrency"),
			ResendAPIKey:     v.GetString("mail.resend_api_key"),
			SMTP: smtpmail.Config{
				Host:        v.GetString("mail.smtp.host"),
				Port:        v.GetInt("mail.smtp.port"),
				Username:    v.GetString("mail.smtp.username"),
				Password:    v.GetString("mail.smtp.password"),
				From:        v.GetString("mail.from"),
				MaxConns:    v.GetInt("mail.smtp.max_conns"),
				SendTimeout: v.GetDuration("mail.smtp.send_timeout"),
				SSL:         v.GetBool("mail.smtp.ssl"),
			},
		},
		Audit: auditConfig{
			Stdout:       v.GetBool("audit.stdout"),
			KafkaBrokers: splitList(v.GetString("audit.kafka_brokers")),
			KafkaTopic:   v.GetString("audit.kafka_topic"),
		},
		Log: logging.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
	}
	return rc, rc.validate()
}

func (rc runtimeConfig) validate() error {
	switch rc.Store.Driver {
	case "memory":
	case "postgres":
		if rc.Store.PostgresURL == "" {
			return errors.New("store.postgres_url is required for the postgres driver")
		}
	case "mongo":
		if rc.Store.MongoURI == "" || rc.Store.MongoDatabase == "" {
			return errors.New("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", rc.Store.Driver)
	}

	switch rc.Mail.Driver {
	case "log":
	case "smtp":
		if err := rc.Mail.SMTP.Validate(); err != nil {
			return err
		}
	case "resend":
		if rc.Mail.ResendAPIKey == "" {
			return errors.New("mail.resend_api_key is required for the resend driver")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", rc.Mail.Driver)
	}

	if rc.HTTPAddr == "" {
		return errors.New("http.addr is required")
	}
	if rc.ShutdownTimeout <= 0 {
		return errors.New("shutdown.timeout must be > 0")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
