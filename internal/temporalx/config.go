package temporalx

import (
	"strings"
	"time"
)

// Config is filled from the TEMPORAL_* settings. An empty Address disables Temporal.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout           time.Duration
	DialMaxWait           time.Duration
	Backoff               time.Duration
	BackoffMax            time.Duration
	AutoRegisterNamespace bool
	RetentionDays         int
	WorkerConcurrency     int
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	c.Address = strings.TrimSpace(c.Address)
	c.Namespace = stringsOr(c.Namespace, "listingtrust")
	c.TaskQueue = stringsOr(c.TaskQueue, "listingtrust")
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.RetentionDays < 1 {
		c.RetentionDays = 7
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 4
	}
	return c
}

func (c Config) hasTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
