// Package main runs the configured vision pipelines against the configured cameras and serves
// their previews on the dashboard. It is the bench stand-in for a robot op-mode.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/teamcode/robotcv/logging"
)

const (
	// Flags.
	flagConfig       = "config"
	flagDebug        = "debug"
	flagLogFile      = "log-file"
	flagDuration     = "duration"
	flagPollInterval = "poll-interval"
	flagWatch        = "watch"
	flagCycle        = "cycle"
)

func main() {
	app := &cli.App{
		Name:  "visiondemo",
		Usage: "run camera pipelines from a robot config",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated as it grows",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "build every configured pipeline and report what they see",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long; zero runs until interrupted",
					},
					&cli.DurationFlag{
						Name:  flagPollInterval,
						Value: defaultPollInterval,
						Usage: "how often pipeline results are logged",
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "rebuild pipelines when the config file changes",
					},
					&cli.DurationFlag{
						Name:  flagCycle,
						Usage: "pause and resume every pipeline at this interval",
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := c.Bool(flagDebug)
	logger := logging.NewLogger("visiondemo")
	if debug {
		logger = logging.NewDebugLogger("visiondemo")
	}
	if path := c.Path(flagLogFile); path != "" {
		logFile := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64,
			MaxBackups: 2,
			Compress:   true,
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				log.Println(err)
			}
		}()
		logger.AddAppender(logging.NewWriterAppender(logFile))
	}
	logging.ReplaceGlobal(logger)

	return run(ctx, runOptions{
		ConfigPath:   c.Path(flagConfig),
		Debug:        debug,
		Duration:     c.Duration(flagDuration),
		PollInterval: c.Duration(flagPollInterval),
		Watch:        c.Bool(flagWatch),
		Cycle:        c.Duration(flagCycle),
	}, logger)
}
