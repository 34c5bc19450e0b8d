package services

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func testContext(t *testing.T, flags []cli.Flag, args ...string) *cli.Context {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		f.Apply(fs)
	}
	require.NoError(t, fs.Parse(args))
	return cli.NewContext(cli.NewApp(), fs, nil)
}
