// Package cli contains all business logic needed by the obstool command.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig   = "config"
	flagDebug    = "debug"
	flagPoints   = "points"
	flagRange    = "range"
	flagIntens   = "intensity"
	flagConf     = "confidence"
	flagBaseDir  = "base-dir"
	flagOut      = "out"
	flagFormat   = "format"
	flagColorize = "colorize"
	flagCompress = "compress"
	flagAuto     = "auto"
)

var app = &cli.App{
	Name:            "obstool",
	Usage:           "inspect and manage observation archives",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "classes",
			Usage:  "list the classes archives can hold",
			Action: ClassesAction,
		},
		{
			Name:      "info",
			Usage:     "describe the object stored in an archive",
			ArgsUsage: "<archive>",
			Action:    InfoAction,
		},
		{
			Name:      "offload",
			Usage:     "move the points and range image of a scan into files of their own",
			ArgsUsage: "<archive> <output archive>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagPoints,
					Usage: "payload file `NAME` for the points",
				},
				&cli.StringFlag{
					Name:  flagRange,
					Usage: "payload file `NAME` for the range image",
				},
				&cli.StringFlag{
					Name:  flagIntens,
					Usage: "payload file `NAME` for the intensity image",
				},
				&cli.StringFlag{
					Name:  flagConf,
					Usage: "payload file `NAME` for the confidence image",
				},
				&cli.BoolFlag{
					Name:  flagAuto,
					Usage: "offload every group the scan has under fresh unique names",
				},
				&cli.StringFlag{
					Name:  flagBaseDir,
					Usage: "write the payloads under `DIR` instead of the configured base directory",
				},
			},
			Action: OffloadAction,
		},
		{
			Name:      "load",
			Usage:     "bring externally stored payloads of a scan back into the archive",
			ArgsUsage: "<archive> <output archive>",
			Action:    LoadAction,
		},
		{
			Name:      "export",
			Usage:     "export the points of a scan as a PCD or LAS file",
			ArgsUsage: "<archive>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagOut,
					Aliases:  []string{"o"},
					Usage:    "write the cloud to `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:  flagFormat,
					Value: "ascii",
					Usage: "output format: ascii or binary PCD, or las",
				},
				&cli.StringFlag{
					Name:  flagColorize,
					Usage: "color points by the x, y or z coordinate",
				},
			},
			Action: ExportAction,
		},
		{
			Name:      "compress",
			Usage:     "rewrite an archive with or without gzip compression",
			ArgsUsage: "<archive> <output archive>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagCompress,
					Value: true,
					Usage: "gzip the output",
				},
			},
			Action: CompressAction,
		},
	},
}

// NewApp returns a new app with the CLI function set.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
