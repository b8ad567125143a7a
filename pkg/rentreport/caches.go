package rentreport

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/cache"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
)

// Cache key prefixes. Keys are "<prefix>:<member subject>".
const (
	PrefixReports     = "rent-reports"
	PrefixDocuments   = "documents"
	PrefixCreditScore = "credit-score"
)

// Caches holds the read models shown on the member dashboard.
type Caches struct {
	Reports   *cache.Cache[[]client.RentReport]
	Documents *cache.Cache[[]client.Document]
	Scores    *cache.Cache[client.CreditScore]
}

// NewCaches builds the dashboard caches sharing ttl and clock.
func NewCaches(ttl time.Duration, c clock.Clock, logger *zap.Logger) *Caches {
	opts := []cache.Option{cache.WithTTL(ttl), cache.WithClock(c), cache.WithLogger(logger)}
	return &Caches{
		Reports:   cache.New[[]client.RentReport](PrefixReports, opts...),
		Documents: cache.New[[]client.Document](PrefixDocuments, opts...),
		Scores:    cache.New[client.CreditScore](PrefixCreditScore, opts...),
	}
}

// Invalidators lists the caches for submission invalidation.
func (c *Caches) Invalidators() cache.Invalidators {
	return cache.Invalidators{c.Reports, c.Documents, c.Scores}
}

func key(prefix, subject string) string { return prefix + ":" + subject }
