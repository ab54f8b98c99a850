package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	NotificationStorePostgres = "postgres"
	NotificationStoreMemory   = "memory"

	defaultAMQPExchange   = "chat-relay.events"
	defaultPushTimeout    = 10 * time.Second
	defaultPushRetryDelay = time.Second
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string

	// FCMCredentials is the path to a Firebase service account file. When
	// empty, push notifications are only logged.
	FCMCredentials string
	// AMQPURL enables the event mirror when set.
	AMQPURL      string
	AMQPExchange string

	PushTimeout       time.Duration
	PushRetryDelay    time.Duration
	NotificationStore string
	ScopeDMsByCompany bool
	RunMigrations     bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("empty key")
	}

	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:       databaseDSN,
		ServerAddr:        serverAddr,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		AMQPExchange:      defaultAMQPExchange,
		PushTimeout:       defaultPushTimeout,
		PushRetryDelay:    defaultPushRetryDelay,
		NotificationStore: NotificationStorePostgres,
		ScopeDMsByCompany: true,
	}, nil
}

// Validate checks the optional settings applied after NewConfig.
func (c *Config) Validate() error {
	switch c.NotificationStore {
	case NotificationStorePostgres, NotificationStoreMemory:
	default:
		return fmt.Errorf("unknown notification store %q", c.NotificationStore)
	}

	if c.PushTimeout <= 0 {
		return fmt.Errorf("push timeout must be positive")
	}
	if c.PushRetryDelay <= 0 {
		return fmt.Errorf("push retry delay must be positive")
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("amqp exchange cannot be empty when amqp url is set")
	}

	return nil
}
