package internal

import (
	"github.com/redis/go-redis/v9"

	"github.com/vishalnemlekar/instabot/services/cache"
	"github.com/vishalnemlekar/instabot/services/publisher"
	"github.com/vishalnemlekar/instabot/services/store"
)

// Dependencies holds all service dependencies. Cache, Publisher and Redis are
// nil when not configured.
type Dependencies struct {
	Store     store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Redis     *redis.Client
}

// Cleanup closes every open connection
func (d *Dependencies) Cleanup() {
	if d.Publisher != nil {
		// closes the shared redis client too
		d.Publisher.Close()
	} else if d.Redis != nil {
		d.Redis.Close()
	}
	if d.Store != nil {
		d.Store.Close()
	}
}
