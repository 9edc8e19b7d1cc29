// Package pg relays sse broadcasts between processes with PostgreSQL
// LISTEN/NOTIFY.
//
//	svc := sse.NewFromConfig(cfg, sse.WithConnector(pg.New(cfg.BusURL, pg.WithChannel(cfg.PGChannel))))
//
// All topics share one notification channel (DefaultChannel unless set with
// WithChannel). Each notification carries a JSON envelope:
//
//	{"topic":"myapp:sse:chat:room1","payload":"{\"event\":\"msg\",\"data\":\"hi\"}"}
//
// Subscribers filter envelopes by topic prefix, so several namespaces can
// share the channel. PostgreSQL limits a notification to just under 8000
// bytes; Publish rejects larger envelopes with ErrPayloadTooLarge before
// sending. Server errors are returned unchanged while connection failures are
// wrapped with sse.ErrRelayUnavailable.
package pg
