package allowdex

import "context"

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs        []string
	password     string
	keyPrefix    string
	metric       string
	hashDim      int
	vectorizer   Vectorizer
	minScore     float64
	defaultLimit int
	maxLimit     int
}

// WithRedis sets the Redis/Valkey addresses to connect to.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.addrs = addrs
	}
}

// WithPassword sets the database password.
func WithPassword(password string) Option {
	return func(c *clientConfig) {
		c.password = password
	}
}

// WithKeyPrefix overrides the key namespace (default "allowdex:").
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		c.keyPrefix = prefix
	}
}

// WithMetric selects the similarity metric: "cosine" (default), "dot" or "l2".
func WithMetric(metric string) Option {
	return func(c *clientConfig) {
		c.metric = metric
	}
}

// WithVectorizer plugs a custom embedding backend. Without it the client
// falls back to the deterministic offline vectorizer.
func WithVectorizer(v Vectorizer) Option {
	return func(c *clientConfig) {
		c.vectorizer = v
	}
}

// WithHashDimension sets the dimension of the offline fallback vectorizer
// (default 384). Ignored when WithVectorizer is used.
func WithHashDimension(dim int) Option {
	return func(c *clientConfig) {
		c.hashDim = dim
	}
}

// WithMinScore sets the relevance threshold; results scoring below it are
// dropped. Zero disables the filter.
func WithMinScore(minScore float64) Option {
	return func(c *clientConfig) {
		c.minScore = minScore
	}
}

// WithLimits sets the default and maximum result list sizes.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(c *clientConfig) {
		c.defaultLimit = defaultLimit
		c.maxLimit = maxLimit
	}
}

// Vectorizer is the public embedding contract for custom backends.
type Vectorizer interface {
	ModelName() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	WarmUp(ctx context.Context) error
}
