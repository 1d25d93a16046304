package deadletter

import (
	"fmt"
	"os"
	"time"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

const (
	EnvDeadLetterBackend             = "DEADLETTER_BACKEND"
	EnvDeadLetterRetention           = "DEADLETTER_RETENTION"
	EnvDeadLetterFirestoreProject    = "DEADLETTER_FIRESTORE_PROJECT"
	EnvDeadLetterFirestoreCollection = "DEADLETTER_FIRESTORE_COLLECTION"
)

type FirestoreConfig struct {
	Project         string `toml:"project"`
	Collection      string `toml:"collection"`
	CredentialsFile string `toml:"credentials_file"`
}

// Config selects the dead-letter backend and its retention policy.
type Config struct {
	Backend   string          `toml:"backend"`
	Retention string          `toml:"retention"`
	Firestore FirestoreConfig `toml:"firestore"`
}

// RetentionDuration is how long terminal entries are kept before Purge removes them.
func (c *Config) RetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Retention != "" {
		c.Retention = overlay.Retention
	}
	if overlay.Firestore.Project != "" {
		c.Firestore.Project = overlay.Firestore.Project
	}
	if overlay.Firestore.Collection != "" {
		c.Firestore.Collection = overlay.Firestore.Collection
	}
	if overlay.Firestore.CredentialsFile != "" {
		c.Firestore.CredentialsFile = overlay.Firestore.CredentialsFile
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendPostgres
	}
	if c.Retention == "" {
		c.Retention = "168h"
	}
	if c.Firestore.Collection == "" {
		c.Firestore.Collection = "dead_letters"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvDeadLetterBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvDeadLetterRetention); v != "" {
		c.Retention = v
	}
	if v := os.Getenv(EnvDeadLetterFirestoreProject); v != "" {
		c.Firestore.Project = v
	}
	if v := os.Getenv(EnvDeadLetterFirestoreCollection); v != "" {
		c.Firestore.Collection = v
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendPostgres, BackendMemory:
	case BackendFirestore:
		if c.Firestore.Project == "" {
			return fmt.Errorf("firestore backend requires project")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
	}

	if d, err := time.ParseDuration(c.Retention); err != nil || d <= 0 {
		return fmt.Errorf("invalid retention %q", c.Retention)
	}
	return nil
}
