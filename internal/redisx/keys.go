package redisx

import "time"

const (
	// idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order_status:{order_id} -> last status the notifier saw
	KeyOrderStatus = "order_status:%s"

	// dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// lock:{name}, name is the caller's key (order:{id}, create:{idempotency_key})
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLLock        = 30 * time.Second
)
