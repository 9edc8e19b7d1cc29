// Package redis opens go-redis clients with URL validation and retrying
// connection checks.
//
// Configuration is read from the environment through core/config:
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Connect pings the server with exponential backoff, starting at
// RetryInterval, for at most RetryAttempts tries inside ConnectTimeout.
// Healthcheck wraps a ping as a readiness probe for core/health.
//
// Errors are joined with the package sentinels, so callers can use errors.Is
// with ErrEmptyConnectionURL, ErrFailedToParseRedisConnString, ErrRedisNotReady
// and ErrHealthcheckFailed.
package redis
