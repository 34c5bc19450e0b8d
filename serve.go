package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"

	s "github.com/cloudstrm/strm-gateway/services"
)

func makeServeCMD() cli.Command {
	serveCmd := cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serves the stream gateway",
		Action:  serve,
	}
	configureServe(&serveCmd)
	return serveCmd
}

func configureServe(c *cli.Command) {
	c.Flags = cs.RegisterProbeFlags(c.Flags)
	c.Flags = s.RegisterWebFlags(c.Flags)
	c.Flags = s.RegisterCredentialStoreFlags(c.Flags)
	c.Flags = s.RegisterCloudAPIFlags(c.Flags)
	c.Flags = s.RegisterLinkResolverFlags(c.Flags)
	c.Flags = s.RegisterLinkMapFlags(c.Flags)
	c.Flags = s.RegisterStreamerFlags(c.Flags)
}

func serve(c *cli.Context) error {
	// Setting Probe
	probe := cs.NewProbe(c)
	defer probe.Close()

	// Setting CredentialStore
	cred := s.NewCredentialStore(c)

	// Setting CloudAPI
	api := s.NewCloudAPI(c, cred, &http.Client{})
	defer api.Close()

	// Setting LinkResolver
	lr := s.NewLinkResolver(c, api)

	// Setting LinkMap
	lm := s.NewLinkMap(c, lr)

	// Setting Validator
	vd := s.NewValidator(c, &http.Client{})

	// Setting Streamer
	// no client timeout here, streams outlive any sane deadline
	st := s.NewStreamer(c, lm, vd, &http.Client{})

	// Setting Web
	web := s.NewWeb(c, st)
	defer web.Close()

	// Setting Serve
	serve := cs.NewServe(probe, web)

	// And SERVE!
	err := serve.Serve()
	if err != nil {
		log.WithError(err).Error("got server error")
	}
	return err
}
