package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const (
	syncerRemoteRootFlag = "remote-root"
	syncerLocalRootFlag  = "local-root"
	syncerModeFlag       = "sync-mode"
	syncerRecursiveFlag  = "recursive"
	syncerWritersFlag    = "sync-writers"
)

func RegisterSyncerFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   syncerRemoteRootFlag,
			Usage:  "provider directory id to scan",
			Value:  "",
			EnvVar: "REMOTE_ROOT",
		},
		cli.StringFlag{
			Name:   syncerLocalRootFlag,
			Usage:  "local directory placeholders are written under",
			Value:  ".",
			EnvVar: "LOCAL_ROOT",
		},
		cli.StringFlag{
			Name:   syncerModeFlag,
			Usage:  "diff mode: local (additive) or remote (mirror, deletes stale placeholders)",
			Value:  string(SyncModeLocal),
			EnvVar: "SYNC_MODE",
		},
		cli.BoolTFlag{
			Name:   syncerRecursiveFlag,
			Usage:  "descend into remote subdirectories",
			EnvVar: "RECURSIVE",
		},
		cli.IntFlag{
			Name:   syncerWritersFlag,
			Usage:  "concurrent write actions",
			Value:  4,
			EnvVar: "SYNC_WRITERS",
		},
	)
}

// Syncer drives one scan run: walker output through the planner into the
// writer, then the subtractive pass in remote mode, then the refresh
// notification. Per-item failures are counted, never fatal; only a dead
// provider or an unwritable target aborts the run.
type Syncer struct {
	w          *DirectoryWalker
	p          *StrmPlanner
	wr         *StrmWriter
	idx        *IndexStore
	nt         *RefreshNotifier
	remoteRoot string
	localRoot  string
	mode       SyncMode
	recursive  bool
	writers    int
}

func NewSyncer(c *cli.Context, w *DirectoryWalker, p *StrmPlanner, wr *StrmWriter, idx *IndexStore, nt *RefreshNotifier) *Syncer {
	mode := SyncMode(c.String(syncerModeFlag))
	if mode != SyncModeRemote {
		mode = SyncModeLocal
	}
	writers := c.Int(syncerWritersFlag)
	if writers < 1 {
		writers = 1
	}
	return &Syncer{
		w:          w,
		p:          p,
		wr:         wr,
		idx:        idx,
		nt:         nt,
		remoteRoot: c.String(syncerRemoteRootFlag),
		localRoot:  c.String(syncerLocalRootFlag),
		mode:       mode,
		recursive:  c.BoolT(syncerRecursiveFlag),
		writers:    writers,
	}
}

func (s *Syncer) Run(ctx context.Context) (*SyncReport, error) {
	if s.remoteRoot == "" {
		return nil, errors.Errorf("remote root is empty")
	}
	log.WithField("root", s.remoteRoot).WithField("mode", s.mode).Info("starting scan")
	started := time.Now()

	report := &SyncReport{}
	var mu sync.Mutex
	live := map[string]bool{}

	nodes, stat := s.w.Walk(ctx, s.remoteRoot, s.recursive)
	var actions []*PlanAction
	for n := range nodes {
		a := s.p.Plan(n, s.localRoot)
		if a.Type == ActionSkip {
			report.Skipped++
			continue
		}
		if a.Key != "" {
			live[a.Key] = true
		}
		actions = append(actions, a)
	}
	// paths are claimed in key order before any write, so collision naming
	// does not depend on which writer gets there first
	sort.Slice(actions, func(i, j int) bool {
		return keyOf(actions[i]) < keyOf(actions[j])
	})
	for _, a := range actions {
		s.wr.Reserve(a)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.writers)
	for _, a := range actions {
		g.Go(func() error {
			outcome, err := s.wr.Apply(gctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Failures = append(report.Failures, SyncFailure{Path: a.Node.Path, Reason: err.Error()})
				log.WithError(err).WithField("path", a.Node.Path).Warn("write action failed")
				return nil
			}
			switch outcome {
			case outcomeCreated:
				report.Created++
			case outcomeUpdated:
				report.Updated++
			default:
				report.Ignored++
			}
			if a.Type == ActionDownloadSide && outcome != outcomeIgnored {
				report.SideFiles = append(report.SideFiles, SideFile{
					Path:     a.Node.Path,
					Language: subtitleLanguage(a.FileName),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "scan cancelled")
	}

	report.Failed += stat.FailedDirs
	report.Failures = append(report.Failures, stat.Failures...)

	if s.mode == SyncModeRemote {
		// a partially listed tree must not trigger mass deletion
		if stat.FailedDirs > 0 {
			log.Warnf("skipping subtractive pass, %v subtrees failed to list", stat.FailedDirs)
		} else if err := s.prune(live, report); err != nil {
			return report, err
		}
	}

	if err := s.idx.SaveCheckpoint(s.remoteRoot, started); err != nil {
		log.WithError(err).Warn("failed to save scan checkpoint")
	}

	log.WithField("report", report).Infof("scan finished in %v", time.Since(started).Round(time.Millisecond))

	if report.Changed() {
		// best effort, the scan already succeeded
		s.nt.Notify(ctx)
	}
	return report, nil
}

// prune removes placeholders whose key no longer appears in the latest
// listing, along with their index entries.
func (s *Syncer) prune(live map[string]bool, report *SyncReport) error {
	records, err := s.idx.ListByRemoteDir("")
	if err != nil {
		return errors.Wrap(err, "failed to list index for prune")
	}
	for _, rec := range records {
		if live[rec.Key] {
			continue
		}
		if err := s.wr.Remove(&rec); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, SyncFailure{Path: rec.RemoteDir + "/" + rec.Name, Reason: err.Error()})
			log.WithError(err).WithField("key", rec.Key).Warn("failed to prune placeholder")
			continue
		}
		report.Deleted++
	}
	return nil
}
