package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	app := cli.NewApp()
	app.Name = "strm-gateway"
	app.Usage = "Materializes STRM placeholders for cloud-hosted media and serves playable links"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		makeServeCMD(),
		makeSyncCMD(),
	}
	err := app.Run(os.Args)
	if err != nil {
		log.WithError(err).Fatal("got application error")
	}
}
