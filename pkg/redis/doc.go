// Package redis provides Redis connection establishment with retries and
// a health check helper on top of go-redis.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// The client backs subscription.RedisWaitingListStore.
package redis
