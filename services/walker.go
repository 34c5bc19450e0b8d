package services

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	walkerWorkersFlag  = "walker-workers"
	walkerPageSizeFlag = "walker-page-size"
)

func RegisterDirectoryWalkerFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.IntFlag{
			Name:   walkerWorkersFlag,
			Usage:  "concurrent directory listings",
			Value:  4,
			EnvVar: "WALKER_WORKERS",
		},
		cli.IntFlag{
			Name:   walkerPageSizeFlag,
			Usage:  "listing page size",
			Value:  200,
			EnvVar: "WALKER_PAGE_SIZE",
		},
	)
}

// WalkStat counts what a walk saw. FailedDirs covers subtrees that were
// skipped after a listing failure; their siblings keep going.
type WalkStat struct {
	mu         sync.Mutex
	Dirs       int
	Files      int
	FailedDirs int
	Failures   []SyncFailure
}

func (s *WalkStat) fail(path string, err error) {
	s.mu.Lock()
	s.FailedDirs++
	s.Failures = append(s.Failures, SyncFailure{Path: path, Reason: err.Error()})
	s.mu.Unlock()
}

func (s *WalkStat) count(isDir bool) {
	s.mu.Lock()
	if isDir {
		s.Dirs++
	} else {
		s.Files++
	}
	s.mu.Unlock()
}

// DirectoryWalker enumerates a remote subtree as a lazy stream of nodes.
// A fixed worker pool consumes a queue of directories to list; discovered
// subdirectories are fed back into the queue, so concurrency stays bounded
// no matter how the tree fans out.
type DirectoryWalker struct {
	cl       CloudClient
	workers  int
	pageSize int
}

func NewDirectoryWalker(c *cli.Context, cl CloudClient) *DirectoryWalker {
	workers := c.Int(walkerWorkersFlag)
	if workers < 1 {
		workers = 1
	}
	return &DirectoryWalker{
		cl:       cl,
		workers:  workers,
		pageSize: c.Int(walkerPageSizeFlag),
	}
}

type walkDir struct {
	id   string
	path string
}

// Walk streams file nodes of the subtree under rootID. Directory nodes are
// consumed internally; file nodes carry Path relative to the root. The
// returned stat is safe to read once the channel has closed.
func (s *DirectoryWalker) Walk(ctx context.Context, rootID string, recursive bool) (<-chan RemoteNode, *WalkStat) {
	out := make(chan RemoteNode)
	stat := &WalkStat{}

	work := make(chan walkDir)
	add := make(chan walkDir)
	done := make(chan struct{})

	// feeder: unbounded buffer between discovery and the worker pool, also
	// the single owner of the pending-directory count
	go func() {
		defer close(work)
		buf := []walkDir{{id: rootID, path: ""}}
		pending := 1
		for pending > 0 {
			var head walkDir
			var outCh chan walkDir
			if len(buf) > 0 {
				head = buf[0]
				outCh = work
			}
			select {
			case d := <-add:
				buf = append(buf, d)
				pending++
			case <-done:
				pending--
			case outCh <- head:
				buf = buf[1:]
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	visited := &sync.Map{}
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range work {
				s.list(ctx, d, recursive, visited, out, add, stat)
				select {
				case done <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, stat
}

func (s *DirectoryWalker) list(ctx context.Context, d walkDir, recursive bool, visited *sync.Map, out chan<- RemoteNode, add chan<- walkDir, stat *WalkStat) {
	if _, seen := visited.LoadOrStore(d.id, true); seen {
		log.WithField("dir", d.path).Warn("skipping already visited directory")
		return
	}
	cursor := ""
	for {
		nodes, next, err := s.cl.List(ctx, d.id, cursor, s.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("dir", d.path).Warn("skipping subtree after listing failure")
			stat.fail(d.path, err)
			return
		}
		for _, n := range nodes {
			n.Path = joinRemotePath(d.path, n.Name)
			stat.count(n.IsDir)
			if n.IsDir {
				if recursive {
					select {
					case add <- walkDir{id: n.ID, path: n.Path}:
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
		if next == "" {
			return
		}
		cursor = next
	}
}

func joinRemotePath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}
