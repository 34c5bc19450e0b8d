package services

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	_ "modernc.org/sqlite"
)

const (
	indexPathFlag = "index-path"
)

func RegisterIndexStoreFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   indexPathFlag,
			Usage:  "path of the placeholder index database",
			Value:  "strm-index.db",
			EnvVar: "INDEX_PATH",
		},
	)
}

// IndexStore persists StrmRecords between scan runs so the planner can
// tell created from updated and find records whose remote counterpart is
// gone. One writer at a time; concurrent scans of one root are the
// caller's problem to serialize.
type IndexStore struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS strm_records (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	local_dir  TEXT NOT NULL,
	remote_dir TEXT NOT NULL,
	raw_url    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS strm_records_remote_dir ON strm_records (remote_dir);
CREATE TABLE IF NOT EXISTS scan_checkpoints (
	remote_root  TEXT PRIMARY KEY,
	last_scan_at INTEGER NOT NULL
);
`

func NewIndexStore(c *cli.Context) (*IndexStore, error) {
	path := c.String(indexPathFlag)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open index at %v", path)
	}
	// modernc sqlite is not safe for concurrent writes over one connection pool entry
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to init index schema at %v", path)
	}
	log.Infof("opened index at %v", path)
	return &IndexStore{db: db}, nil
}

func (s *IndexStore) Get(key string) (*StrmRecord, error) {
	row := s.db.QueryRow(
		`SELECT key, name, local_dir, remote_dir, raw_url, created_at, updated_at
		 FROM strm_records WHERE key = ?`, key)
	var r StrmRecord
	var created, updated int64
	err := row.Scan(&r.Key, &r.Name, &r.LocalDir, &r.RemoteDir, &r.RawURL, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get record key=%v", key)
	}
	r.CreatedAt = time.Unix(created, 0)
	r.UpdatedAt = time.Unix(updated, 0)
	return &r, nil
}

func (s *IndexStore) Upsert(r *StrmRecord) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO strm_records (key, name, local_dir, remote_dir, raw_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			local_dir = excluded.local_dir,
			remote_dir = excluded.remote_dir,
			raw_url = excluded.raw_url,
			updated_at = excluded.updated_at`,
		r.Key, r.Name, r.LocalDir, r.RemoteDir, r.RawURL, r.CreatedAt.Unix(), r.UpdatedAt.Unix())
	return errors.Wrapf(err, "failed to upsert record key=%v", r.Key)
}

func (s *IndexStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM strm_records WHERE key = ?`, key)
	return errors.Wrapf(err, "failed to delete record key=%v", key)
}

// ListByRemoteDir returns records whose remote_dir equals prefix or lives
// under it. An empty prefix returns everything.
func (s *IndexStore) ListByRemoteDir(prefix string) ([]StrmRecord, error) {
	q := `SELECT key, name, local_dir, remote_dir, raw_url, created_at, updated_at
		 FROM strm_records WHERE remote_dir = ? OR remote_dir LIKE ? ORDER BY key`
	like := prefix + "/%"
	if prefix == "" {
		like = "%"
	}
	rows, err := s.db.Query(q, prefix, like)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list records under %v", prefix)
	}
	defer rows.Close()
	var res []StrmRecord
	for rows.Next() {
		var r StrmRecord
		var created, updated int64
		if err := rows.Scan(&r.Key, &r.Name, &r.LocalDir, &r.RemoteDir, &r.RawURL, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		r.CreatedAt = time.Unix(created, 0)
		r.UpdatedAt = time.Unix(updated, 0)
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *IndexStore) Checkpoint(remoteRoot string) (*ScanCheckpoint, error) {
	row := s.db.QueryRow(`SELECT remote_root, last_scan_at FROM scan_checkpoints WHERE remote_root = ?`, remoteRoot)
	var cp ScanCheckpoint
	var at int64
	err := row.Scan(&cp.RemoteRoot, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get checkpoint root=%v", remoteRoot)
	}
	cp.LastScanAt = time.Unix(at, 0)
	return &cp, nil
}

func (s *IndexStore) SaveCheckpoint(remoteRoot string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO scan_checkpoints (remote_root, last_scan_at) VALUES (?, ?)
		 ON CONFLICT(remote_root) DO UPDATE SET last_scan_at = excluded.last_scan_at`,
		remoteRoot, at.Unix())
	return errors.Wrapf(err, "failed to save checkpoint root=%v", remoteRoot)
}

func (s *IndexStore) Close() {
	log.Info("closing IndexStore")
	if s.db != nil {
		_ = s.db.Close()
	}
}
