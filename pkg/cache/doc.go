// Package cache stores fetched result pages in Redis.
//
// A sweep that is interrupted (cancellation, quota exhausted for the day,
// process restart) can be re-run without paying again for the pages it
// already fetched. Pages are keyed by the full query (keyword, city scope,
// polygon, page number and page size), so a different decomposition or page
// size never reuses a page that does not match.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.PageKey{Keyword: "物业公司", City: "310000", Polygon: box.PolygonParam(), Page: 1, PageSize: 25}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the provider, then manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - poi_cache_hits_total - Cache hits
//   - poi_cache_misses_total - Cache misses
//   - poi_cache_errors_total{operation} - Cache operation errors
//
// Only successful pages are cached. Error responses and rate-limit replies
// are never stored.
package cache
