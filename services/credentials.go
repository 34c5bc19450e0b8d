package services

import (
	"sync/atomic"

	"github.com/urfave/cli"
)

const (
	credentialsApiKeyFlag  = "cloud-api-key"
	credentialsSessionFlag = "cloud-api-session"
)

func RegisterCredentialStoreFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   credentialsApiKeyFlag,
			Usage:  "cloud provider api key",
			Value:  "",
			EnvVar: "CLOUD_API_KEY",
		},
		cli.StringFlag{
			Name:   credentialsSessionFlag,
			Usage:  "cloud provider session cookie",
			Value:  "",
			EnvVar: "CLOUD_API_SESSION",
		},
	)
}

// Credentials is an immutable snapshot. Outgoing requests read one snapshot
// and never observe a half-rotated key/session pair.
type Credentials struct {
	ApiKey  string
	Session string
}

// CredentialStore holds the current provider credentials. Rotation driven
// by provider responses goes through CompareAndSwap so concurrent handlers
// cannot clobber each other's updates.
type CredentialStore struct {
	cur atomic.Pointer[Credentials]
}

func NewCredentialStore(c *cli.Context) *CredentialStore {
	s := &CredentialStore{}
	s.cur.Store(&Credentials{
		ApiKey:  c.String(credentialsApiKeyFlag),
		Session: c.String(credentialsSessionFlag),
	})
	return s
}

func (s *CredentialStore) Load() Credentials {
	return *s.cur.Load()
}

func (s *CredentialStore) Store(c Credentials) {
	s.cur.Store(&c)
}

// Rotate swaps in next only if the store still holds prev. Returns false
// when another request rotated first, in which case the caller keeps the
// winner's snapshot.
func (s *CredentialStore) Rotate(prev, next Credentials) bool {
	old := s.cur.Load()
	if *old != prev {
		return false
	}
	n := next
	return s.cur.CompareAndSwap(old, &n)
}
