package server

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	DefaultAddr      = "127.0.0.1:7778"
	DefaultEchoDelay = 3 * time.Second
)

// Flags defines CLI flags to configure the WebSocket echo server. These flags
// can also be set using environment variables and the application's
// configuration file.
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "server-addr",
			Usage: "TCP address to listen on for WebSocket connections",
			Value: DefaultAddr,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DELECHO_SERVER_ADDR"),
				toml.TOML("server.addr", configFilePath),
			),
		},
		&cli.DurationFlag{
			Name:  "echo-delay",
			Usage: "wait between receiving a text message and echoing it back",
			Value: DefaultEchoDelay,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DELECHO_ECHO_DELAY"),
				toml.TOML("server.echo_delay", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "echo-suffix",
			Usage: "optional string appended to every echoed payload",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DELECHO_ECHO_SUFFIX"),
				toml.TOML("server.echo_suffix", configFilePath),
			),
		},
	}
}
