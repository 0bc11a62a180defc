package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// Cooldown keeps rate-limited scopes out of the crawl for a block time.
// A nil Cooldown or one without a cache never blocks anything.
type Cooldown struct {
	cache  CacheService
	prefix string
	block  time.Duration
	log    *logger.Logger
}

// NewCooldown creates a cooldown tracker storing its blocks in c
func NewCooldown(c CacheService, prefix string, block time.Duration) *Cooldown {
	return &Cooldown{cache: c, prefix: prefix, block: block, log: logger.ForCache()}
}

// key maps an arbitrary scope (usually a parent URL) to a memcache safe key
func (c *Cooldown) key(scope string) string {
	sum := sha256.Sum256([]byte(scope))
	return c.prefix + "_rate_limited:" + hex.EncodeToString(sum[:12])
}

// Active reports whether scope is still blocked. Cache failures count as
// not blocked so an unreachable cache never stops the crawl.
func (c *Cooldown) Active(scope string) bool {
	if c == nil || c.cache == nil {
		return false
	}
	_, err := c.cache.Get(c.key(scope))
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrMiss) {
		c.log.Warn().Err(err).Str("scope", scope).Msg("Cooldown lookup failed")
	}
	return false
}

// Start blocks scope for the configured block time
func (c *Cooldown) Start(scope string) error {
	if c == nil || c.cache == nil || c.block <= 0 {
		return nil
	}
	value := []byte(strconv.Itoa(int(c.block / time.Second)))
	if err := c.cache.Set(c.key(scope), value, c.block); err != nil {
		return pkgerrors.NewCache(scope, "failed to start cooldown", err)
	}
	c.log.Info().Str("scope", scope).Dur("block", c.block).Msg("Cooldown started")
	return nil
}

// Block returns the configured block time
func (c *Cooldown) Block() time.Duration {
	if c == nil {
		return 0
	}
	return c.block
}
