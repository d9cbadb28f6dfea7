// Package redis connects to Redis with go-redis/v9.
//
// Connect parses REDIS_URL, retries until the server answers PING and returns
// a *redis.Client. Healthcheck wraps PING as a readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
