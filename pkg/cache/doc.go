// Package cache keeps small values in Redis with an explicit expiry.
//
// Values are wrapped in an Entry, encoded as JSON and stored under a Key
// rendered as "dashboard-news:<namespace>:<parts...>". The Redis TTL follows
// the entry's Expires time and Get checks it again on read.
//
// The main user is EndpointStore, which remembers the API endpoint found for
// an access id:
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//	cfg := client.DefaultConfig(accessID, accessKey)
//	cfg.EndpointCache = cache.NewEndpointStore(manager)
//
// Access ids are hashed before they become part of a key. The run ledger
// builds its keys with Key as well.
//
// Metrics: dashboard_news_cache_hits_total, dashboard_news_cache_misses_total
// and dashboard_news_cache_errors_total{operation}.
package cache
