package services

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	writerOverwriteFlag = "overwrite"
)

func RegisterStrmWriterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.BoolFlag{
			Name:   writerOverwriteFlag,
			Usage:  "rewrite placeholders and side files that already exist",
			EnvVar: "OVERWRITE",
		},
	)
}

type writeOutcome int

const (
	outcomeCreated writeOutcome = iota
	outcomeUpdated
	outcomeIgnored
)

// StrmWriter materializes planner actions on the local filesystem and keeps
// the index in step. Every write lands via a temp file and rename so the
// media server never scans a half-written placeholder.
type StrmWriter struct {
	cl        CloudClient
	idx       *IndexStore
	overwrite bool

	mu    sync.Mutex
	taken map[string]string // local path -> key claimed this run
}

func NewStrmWriter(c *cli.Context, cl CloudClient, idx *IndexStore) *StrmWriter {
	return &StrmWriter{
		cl:        cl,
		idx:       idx,
		overwrite: c.Bool(writerOverwriteFlag),
		taken:     make(map[string]string),
	}
}

// keyOf is the identity a claim runs under: the placeholder key, or a hash
// of the provider id for side files that carry none.
func keyOf(a *PlanAction) string {
	if a.Key != "" {
		return a.Key
	}
	return StrmKey(a.Node.ID)
}

// Reserve claims the local path for a ahead of parallel application. The
// syncer reserves all actions in key order, so which of two colliding files
// keeps the plain name is a function of their keys, not of arrival order.
func (s *StrmWriter) Reserve(a *PlanAction) {
	s.claim(a.LocalDir, a.FileName, keyOf(a))
}

// claim reserves a local path for key, suffixing deterministically when a
// different key claimed the same path earlier in this run. Claiming again
// under the same key returns the same path.
func (s *StrmWriter) claim(dir, name, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(dir, name)
	if owner, ok := s.taken[path]; ok && owner != key {
		name = CollisionName(name, key)
		path = filepath.Join(dir, name)
	}
	s.taken[path] = key
	return path
}

// Apply executes one action and reports what happened to the report under
// its lock-free counters via the returned outcome.
func (s *StrmWriter) Apply(ctx context.Context, a *PlanAction) (writeOutcome, error) {
	switch a.Type {
	case ActionCreatePlaceholder:
		return s.applyPlaceholder(a)
	case ActionDownloadSide:
		return s.applySide(ctx, a)
	default:
		return outcomeIgnored, nil
	}
}

func (s *StrmWriter) applyPlaceholder(a *PlanAction) (writeOutcome, error) {
	path := s.claim(a.LocalDir, a.FileName, a.Key)
	outcome, err := s.writeFile(path, []byte(a.Content))
	if err != nil {
		return outcome, err
	}
	if outcome == outcomeIgnored {
		return outcome, nil
	}
	rec := &StrmRecord{
		Key:       a.Key,
		Name:      filepath.Base(path),
		LocalDir:  a.LocalDir,
		RemoteDir: remoteDirOf(a.Node.Path),
		RawURL:    a.RawURL,
	}
	if prev, err := s.idx.Get(a.Key); err == nil && prev != nil {
		rec.CreatedAt = prev.CreatedAt
	}
	if err := s.idx.Upsert(rec); err != nil {
		// reconciled on the next scan, the placeholder itself is fine
		log.WithError(err).WithField("key", a.Key).Warn("placeholder written but index upsert failed")
	}
	return outcome, nil
}

func (s *StrmWriter) applySide(ctx context.Context, a *PlanAction) (writeOutcome, error) {
	path := s.claim(a.LocalDir, a.FileName, keyOf(a))
	if _, err := os.Stat(path); err == nil && !s.overwrite {
		return outcomeIgnored, nil
	}
	rc, err := s.cl.Fetch(ctx, a.Node.ID)
	if err != nil {
		return outcomeIgnored, errors.Wrapf(err, "failed to fetch side file %v", a.Node.Path)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return outcomeIgnored, errors.Wrapf(err, "failed to read side file %v", a.Node.Path)
	}
	outcome, err := s.writeFile(path, body)
	if err != nil {
		return outcome, err
	}
	if lang := subtitleLanguage(a.FileName); lang != "" && outcome != outcomeIgnored {
		log.WithField("path", path).WithField("language", lang).Debug("side file written")
	}
	return outcome, nil
}

// writeFile writes body at path atomically. Existing targets are left
// untouched unless overwrite is on, and even then an identical body is a
// no-op so repeated scans never perturb correct files.
func (s *StrmWriter) writeFile(path string, body []byte) (writeOutcome, error) {
	existing, err := os.ReadFile(path)
	exists := err == nil
	if exists {
		if bytes.Equal(existing, body) {
			return outcomeIgnored, nil
		}
		if !s.overwrite {
			return outcomeIgnored, nil
		}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return outcomeIgnored, errors.Wrapf(err, "failed to create dir %v", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return outcomeIgnored, errors.Wrapf(err, "failed to create temp file in %v", dir)
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return outcomeIgnored, errors.Wrapf(err, "failed to write %v", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return outcomeIgnored, errors.Wrapf(err, "failed to close temp for %v", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return outcomeIgnored, errors.Wrapf(err, "failed to rename into %v", path)
	}
	if exists {
		return outcomeUpdated, nil
	}
	return outcomeCreated, nil
}

// Remove deletes the placeholder file and its index entry (remote diff
// mode). A missing file still clears the index entry.
func (s *StrmWriter) Remove(rec *StrmRecord) error {
	path := filepath.Join(rec.LocalDir, rec.Name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %v", path)
	}
	return s.idx.Delete(rec.Key)
}

func remoteDirOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
