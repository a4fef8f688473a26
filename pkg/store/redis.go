package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis connects the cache backend. Callers treat a failed connect as
// a soft error and fall back to the in-process cache.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			db = n
		}
	}
	var tlsConfig *tls.Config
	if boolEnv("REDIS_TLS") {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if serverName := stringEnv("REDIS_TLS_SERVER_NAME", ""); serverName != "" {
			tlsConfig.ServerName = serverName
		}
	}
	if boolEnv("REDIS_REQUIRE_TLS") && tlsConfig == nil {
		return nil, fmt.Errorf("REDIS_REQUIRE_TLS=true but REDIS_TLS is not enabled")
	}
	client := redis.NewClient(&redis.Options{
		Addr:      stringEnv("REDIS_ADDR", "localhost:6379"),
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		TLSConfig: tlsConfig,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
