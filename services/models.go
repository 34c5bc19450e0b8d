package services

import (
	"time"
)

type LinkKind string

const (
	LinkKindDownload  LinkKind = "download"
	LinkKindTranscode LinkKind = "transcode"
)

// RemoteNode is one entry of a provider directory listing. Nodes live for
// the duration of a scan pass and are never persisted.
type RemoteNode struct {
	ID         string
	Name       string
	ParentID   string
	IsDir      bool
	Size       int64
	ModifiedAt time.Time
	Category   string
	// Path is the slash-joined remote path relative to the scan root,
	// filled in by the walker.
	Path string
}

// ResolvedLink is the raw result of a provider download-link call.
type ResolvedLink struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresIn int64             `json:"expires_in"`
}

// TranscodeVariant is one rendition returned by a provider transcode call.
type TranscodeVariant struct {
	Resolution string `json:"resolution"`
	URL        string `json:"url"`
	Size       int64  `json:"size,omitempty"`
	ExpiresIn  int64  `json:"expires_in"`
}

// CachedLink is a playable link held by LinkMap. ExpiresAt already has the
// safety margin subtracted, so an entry read before ExpiresAt is safe to
// hand to a player.
type CachedLink struct {
	FileID    string
	URL       string
	Headers   map[string]string
	Kind      LinkKind
	ExpiresAt time.Time
}

// StrmRecord is the persisted identity of one materialized placeholder.
// Key is a pure function of RawURL.
type StrmRecord struct {
	Key       string
	Name      string
	LocalDir  string
	RemoteDir string
	RawURL    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScanCheckpoint remembers when a remote root was last fully scanned.
type ScanCheckpoint struct {
	RemoteRoot string
	LastScanAt time.Time
}

type SyncMode string

const (
	// SyncModeLocal is additive only: placeholders for files gone upstream stay.
	SyncModeLocal SyncMode = "local"
	// SyncModeRemote mirrors the remote tree: stale placeholders are removed.
	SyncModeRemote SyncMode = "remote"
)

// SyncFailure describes one failed unit of work within a scan run.
type SyncFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// SideFile notes one downloaded companion file; subtitles carry the display
// name of the language tag found in the filename, when there is one.
type SideFile struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

// SyncReport is the structured end-of-run summary of a scan.
type SyncReport struct {
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Ignored   int           `json:"ignored"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	SideFiles []SideFile    `json:"side_files,omitempty"`
	Failures  []SyncFailure `json:"failures,omitempty"`
}

func (s *SyncReport) Changed() bool {
	return s.Created+s.Updated+s.Deleted > 0
}

type ErrorResponse struct {
	Error string `json:"error"`
}
