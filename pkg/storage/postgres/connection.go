// Package postgres owns the database connections and schema for the
// platform core.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

// ConnectionConfig holds the pool configuration.
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionManager manages the primary connection and optional read
// replicas. Writes always go to the primary; reads round-robin across
// replicas, falling back to the primary when none are healthy.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewConnectionManager opens and pings the configured connections. A
// failing primary is fatal; failing replicas are skipped with a warning.
func NewConnectionManager(config ConnectionConfig, logger *logrus.Logger) (*ConnectionManager, error) {
	cm := &ConnectionManager{logger: logger}

	primary, err := open(config.PrimaryURL, config, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("primary connection: %w", err)
	}
	if err := ping(primary, config.Timeout); err != nil {
		primary.Close()
		return nil, fmt.Errorf("primary ping: %w", err)
	}
	cm.primary = primary

	replicaConns := config.MaxConns / 2
	if replicaConns < 2 {
		replicaConns = 2
	}
	for i, url := range config.ReplicaURLs {
		replica, err := open(url, config, replicaConns)
		if err == nil {
			err = ping(replica, config.Timeout)
		}
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("replica unavailable, skipping")
			if replica != nil {
				replica.Close()
			}
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("database connections established")
	return cm, nil
}

func open(url string, config ConnectionConfig, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
	return db, nil
}

func ping(db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Primary returns the write connection.
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read connection, round-robin over replicas, or the
// primary when no replica is configured.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and every replica. The primary failing is
// an error; replicas failing is only an error when all of them fail.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	unhealthy := 0
	for _, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy++
		}
	}
	if unhealthy > 0 && unhealthy == len(replicas) {
		return fmt.Errorf("all %d replicas unhealthy", unhealthy)
	}
	return nil
}

// Close closes every connection.
func (cm *ConnectionManager) Close() error {
	var errs []string
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, err.Error())
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for _, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("connection close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseReplicaURLs splits a comma-separated replica URL list.
func ParseReplicaURLs(raw string) []string {
	if raw == "" {
		return nil
	}
	var urls []string
	for _, url := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
