package peercache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	peer_id    TEXT PRIMARY KEY,
	addresses  TEXT NOT NULL,
	source     TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen  TIMESTAMP NOT NULL
);
`

// Entry is one cached peer row.
type Entry struct {
	PeerID    string    `json:"peer_id"`
	Addresses []string  `json:"addresses"`
	Source    string    `json:"source"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Cache persists discovered peers to a local sqlite database so a
// restarted node can redial known peers before the on-chain registry is
// queried again.
type Cache struct {
	db  *sql.DB
	log *logging.ComponentLogger
	mu  sync.Mutex
}

// Open opens (creating if needed) the peer cache at path. The parent
// directory is created with owner-only permissions.
func Open(path string, logger *logging.ColoredLogger) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer cache %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize peer cache schema: %w", err)
	}

	return &Cache{
		db:  db,
		log: logger.ForComponent(logging.ComponentCache),
	}, nil
}

// Record upserts a peer. A repeated peer keeps its first_seen and
// refreshes addresses, source and last_seen.
func (c *Cache) Record(ctx context.Context, info peer.AddrInfo, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs := make([]string, 0, len(info.Addrs))
	for _, addr := range info.Addrs {
		addrs = append(addrs, addr.String())
	}

	query := `
		INSERT INTO peers (peer_id, addresses, source, first_seen, last_seen)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(peer_id) DO UPDATE SET
			addresses = excluded.addresses,
			source    = excluded.source,
			last_seen = CURRENT_TIMESTAMP
	`

	_, err := c.db.ExecContext(ctx, query, info.ID.String(), strings.Join(addrs, ","), source)
	if err != nil {
		return fmt.Errorf("failed to record peer: %w", err)
	}

	c.log.Debug("recorded peer", zap.String("peer_id", info.ID.String()), zap.String("source", source))
	return nil
}

// List returns all cached peers, most recently seen first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := `SELECT peer_id, addresses, source, first_seen, last_seen FROM peers ORDER BY last_seen DESC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var addrs string
		if err := rows.Scan(&e.PeerID, &addrs, &e.Source, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan peer row: %w", err)
		}
		if addrs != "" {
			e.Addresses = strings.Split(addrs, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of cached peers.
func (c *Cache) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM peers`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count peers: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// sink adapts the cache to contracts.Notifee with a fixed source label.
type sink struct {
	cache  *Cache
	source string
}

// Sink returns a notifee that records every discovered peer under the
// given source label. Write failures are logged and dropped; caching is
// best-effort.
func (c *Cache) Sink(source string) contracts.Notifee {
	return &sink{cache: c, source: source}
}

func (s *sink) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.Record(ctx, info, s.source); err != nil {
		s.cache.log.Warn("failed to cache peer", zap.String("peer_id", info.ID.String()), zap.Error(err))
	}
}
