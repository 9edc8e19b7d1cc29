// Package redis relays sse broadcasts between processes over Redis pub/sub.
//
// The Connector plugs into core/sse as the bus behind the relay bridge:
//
//	svc := sse.NewFromConfig(cfg, sse.WithConnector(redis.New(cfg.BusURL)))
//
// Each connection owns its own go-redis client. The bridge listens with
// PSUBSCRIBE on "<namespace>sse:*" and publishes with PUBLISH on the full
// topic. Redis reply errors are returned unchanged; network and client
// failures are wrapped with sse.ErrRelayUnavailable so the bridge drops the
// cached connection and reconnects.
package redis
