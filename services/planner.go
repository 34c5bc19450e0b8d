package services

import (
	"crypto/sha1"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"
)

const (
	plannerBaseUrlFlag     = "strm-base-url"
	plannerVideoExtsFlag   = "video-exts"
	plannerAltExtsFlag     = "alt-exts"
	plannerSubDirsFlag     = "create-sub-directory"
	plannerPlaceholderExt  = ".strm"
	plannerCollisionKeyLen = 8
)

func RegisterStrmPlannerFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   plannerBaseUrlFlag,
			Usage:  "base url written into placeholders, the gateway players will call back",
			Value:  "http://127.0.0.1:8080/stream",
			EnvVar: "STRM_BASE_URL",
		},
		cli.StringFlag{
			Name:   plannerVideoExtsFlag,
			Usage:  "comma-separated video extensions that become placeholders",
			Value:  "",
			EnvVar: "VIDEO_EXTS",
		},
		cli.StringFlag{
			Name:   plannerAltExtsFlag,
			Usage:  "comma-separated extensions downloaded verbatim as side files",
			Value:  "",
			EnvVar: "ALT_EXTS",
		},
		cli.BoolTFlag{
			Name:   plannerSubDirsFlag,
			Usage:  "mirror remote directories as local subdirectories",
			EnvVar: "CREATE_SUB_DIRECTORY",
		},
	)
}

type ActionType string

const (
	ActionCreatePlaceholder ActionType = "create_placeholder"
	ActionDownloadSide      ActionType = "download_side"
	ActionSkip              ActionType = "skip"
)

// PlanAction is one unit of work for the writer. For placeholders Content
// is the full file body and Key its persistent identity.
type PlanAction struct {
	Type     ActionType
	Node     RemoteNode
	LocalDir string
	FileName string
	Content  string
	RawURL   string
	Key      string
}

// StrmPlanner classifies walker output into writer actions. Placeholder
// content is a pure function of file identity, so re-planning an unchanged
// remote tree always yields byte-identical placeholders.
type StrmPlanner struct {
	baseURL   string
	videoExts map[string]bool
	altExts   map[string]bool
	subDirs   bool
}

func NewStrmPlanner(c *cli.Context) *StrmPlanner {
	return &StrmPlanner{
		baseURL:   strings.TrimRight(c.String(plannerBaseUrlFlag), "/"),
		videoExts: makeExtSet(c.String(plannerVideoExtsFlag), defaultExts(Video)),
		altExts:   makeExtSet(c.String(plannerAltExtsFlag), defaultAltExts()),
		subDirs:   c.BoolT(plannerSubDirsFlag),
	}
}

// StrmKey derives the persistent identity of a placeholder from its raw
// url. Equal urls always hash to equal keys.
func StrmKey(rawURL string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(rawURL)))
}

// RawURL builds the placeholder body: base url, the percent-encoded remote
// path, then the provider file id.
func (s *StrmPlanner) RawURL(n RemoteNode) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	for _, seg := range strings.Split(n.Path, "/") {
		if seg == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	b.WriteString("/")
	b.WriteString(url.PathEscape(n.ID))
	return b.String()
}

// Plan classifies one file node. localRoot is the scan's target directory;
// the local directory mirrors the node's remote parent when subdirectory
// creation is on, and collapses to localRoot otherwise.
func (s *StrmPlanner) Plan(n RemoteNode, localRoot string) *PlanAction {
	ext := extOf(n.Name)
	localDir := localRoot
	if s.subDirs {
		if rel := filepath.Dir(filepath.FromSlash(n.Path)); rel != "." {
			localDir = filepath.Join(localRoot, rel)
		}
	}
	switch {
	case s.videoExts[ext]:
		rawURL := s.RawURL(n)
		stem := strings.TrimSuffix(n.Name, filepath.Ext(n.Name))
		return &PlanAction{
			Type:     ActionCreatePlaceholder,
			Node:     n,
			LocalDir: localDir,
			FileName: stem + plannerPlaceholderExt,
			Content:  rawURL + "\n",
			RawURL:   rawURL,
			Key:      StrmKey(rawURL),
		}
	case s.altExts[ext]:
		return &PlanAction{
			Type:     ActionDownloadSide,
			Node:     n,
			LocalDir: localDir,
			FileName: n.Name,
		}
	default:
		return &PlanAction{Type: ActionSkip, Node: n}
	}
}

// CollisionName derives the deterministic alternate filename used when two
// distinct remote files map onto the same local path: a short key prefix is
// spliced in before the extension.
func CollisionName(name, key string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix := key
	if len(suffix) > plannerCollisionKeyLen {
		suffix = suffix[:plannerCollisionKeyLen]
	}
	return stem + "." + suffix + ext
}
