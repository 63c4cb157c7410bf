package startup

import (
	"context"
	"os"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/push"
)

// ConnectPushRegistryWithRetry connects the Redis-backed push subscription
// registry with retries. logPrefix is prepended to log lines.
func ConnectPushRegistryWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *push.RedisRegistry {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		reg, err := push.NewRedisRegistry(ctx, redisURL)
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("%sredis (gave up after %v): %v", logPrefix, maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return reg
	}
}
