package redisx

import "time"

const (
	// Poll signal: poll:expect:{user_id} -> poll.Signal JSON
	KeyPollSignal = "poll:expect:%s"

	// Dedup push events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLPollSignal = 10 * time.Minute
	TTLDedup      = 48 * time.Hour
)
