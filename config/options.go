// Package config defines the connection options the driver core accepts,
// following the teacher's functional-options idiom (tds/conn.go's
// ConnOption) rather than the out-of-scope URL/env parsing SPEC_FULL.md §1
// excludes.
package config

import (
	"crypto/tls"
	"time"

	"github.com/ha1tch/pgwire/pglog"
)

// PasswordPreparer is re-declared here (rather than importing auth) to
// avoid a config->auth dependency edge; auth.PasswordPreparer satisfies
// this signature and is assignable directly.
type PasswordPreparer func(password []byte) (prepared string, usedRaw bool)

// Options carries everything the core's connection constructor needs that
// isn't negotiated over the wire: identity, session GUCs, cache sizing,
// and the diagnostic hooks of C10/C11. SPEC_FULL.md §12.
type Options struct {
	User            string
	Database        string
	Password        []byte
	ApplicationName string
	TimeZone        string
	RuntimeParams   map[string]string

	CacheThreshold        uint64
	CacheSize             int
	NotificationQueueSize int

	TLSConfig        *tls.Config
	PasswordPrepare  PasswordPreparer
	ConnectTimeout   time.Duration

	Logger *pglog.Logger
}

// Option configures an Options value.
type Option func(*Options)

// defaults mirror pagio's own: threshold 5, cache 100 entries, unbounded
// notification queue (original_source/pagio/base_protocol.py's
// PREPARE_THRESHOLD=5 and CACHE_SIZE=100 constants).
func defaultOptions() *Options {
	return &Options{
		RuntimeParams:         make(map[string]string),
		CacheThreshold:        5,
		CacheSize:             100,
		NotificationQueueSize: 0,
		ConnectTimeout:        30 * time.Second,
		Logger:                pglog.New(pglog.DefaultConfig()),
	}
}

// New builds an Options value from functional options, starting from the
// package defaults.
func New(opts ...Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithUser(user string) Option {
	return func(o *Options) { o.User = user }
}

func WithDatabase(db string) Option {
	return func(o *Options) { o.Database = db }
}

func WithPassword(password []byte) Option {
	return func(o *Options) { o.Password = password }
}

func WithApplicationName(name string) Option {
	return func(o *Options) { o.ApplicationName = name }
}

func WithTimeZone(tz string) Option {
	return func(o *Options) { o.TimeZone = tz }
}

func WithRuntimeParam(name, value string) Option {
	return func(o *Options) {
		if o.RuntimeParams == nil {
			o.RuntimeParams = make(map[string]string)
		}
		o.RuntimeParams[name] = value
	}
}

// WithCacheThreshold sets the number of uses before a statement is
// promoted to a server-side PREPARE. 0 disables promotion entirely.
func WithCacheThreshold(n uint64) Option {
	return func(o *Options) { o.CacheThreshold = n }
}

// WithCacheSize sets the LRU statement-cache capacity. 0 disables caching.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithNotificationQueueSize bounds the async NOTIFY queue. 0 is unbounded.
func WithNotificationQueueSize(n int) Option {
	return func(o *Options) { o.NotificationQueueSize = n }
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}

// WithPasswordPrepare overrides the default SASLprep-with-raw-bytes-
// fallback strategy (SPEC_FULL.md §9).
func WithPasswordPrepare(fn PasswordPreparer) Option {
	return func(o *Options) { o.PasswordPrepare = fn }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

func WithLogger(logger *pglog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
