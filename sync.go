package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	s "github.com/cloudstrm/strm-gateway/services"
)

func makeSyncCMD() cli.Command {
	syncCmd := cli.Command{
		Name:    "sync",
		Aliases: []string{"sc"},
		Usage:   "Runs one placeholder scan against the remote root",
		Action:  sync,
	}
	configureSync(&syncCmd)
	return syncCmd
}

func configureSync(c *cli.Command) {
	c.Flags = s.RegisterCredentialStoreFlags(c.Flags)
	c.Flags = s.RegisterCloudAPIFlags(c.Flags)
	c.Flags = s.RegisterDirectoryWalkerFlags(c.Flags)
	c.Flags = s.RegisterStrmPlannerFlags(c.Flags)
	c.Flags = s.RegisterStrmWriterFlags(c.Flags)
	c.Flags = s.RegisterIndexStoreFlags(c.Flags)
	c.Flags = s.RegisterSyncerFlags(c.Flags)
	c.Flags = s.RegisterRefreshNotifierFlags(c.Flags)
}

func sync(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setting CredentialStore
	cred := s.NewCredentialStore(c)

	// Setting CloudAPI
	api := s.NewCloudAPI(c, cred, &http.Client{})
	defer api.Close()

	// Setting IndexStore
	idx, err := s.NewIndexStore(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	// Setting DirectoryWalker
	w := s.NewDirectoryWalker(c, api)

	// Setting StrmPlanner
	p := s.NewStrmPlanner(c)

	// Setting StrmWriter
	wr := s.NewStrmWriter(c, api, idx)

	// Setting RefreshNotifier
	nt := s.NewRefreshNotifier(c, &http.Client{})

	// Setting Syncer
	sn := s.NewSyncer(c, w, p, wr, idx, nt)

	// And SYNC!
	report, err := sn.Run(ctx)
	if err != nil {
		log.WithError(err).Error("got scan error")
		return err
	}
	log.WithFields(log.Fields{
		"created": report.Created,
		"updated": report.Updated,
		"deleted": report.Deleted,
		"ignored": report.Ignored,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("scan report")
	return nil
}
