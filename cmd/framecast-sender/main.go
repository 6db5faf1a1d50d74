// Command framecast-sender reads a YUV4MPEG2 stream on stdin and transmits
// it as adaptively encoded frame fragments over UDP, listening for receiver
// acknowledgments on the same socket.
//
// Usage:
//
//	framecast-sender [--mode fixed|feedback] [--fps N] [--monotonic-acks] \
//	    QUANTIZER HOST PORT CONNECTION_ID
//
// Exit status: 0 on clean end of input, 1 on usage or argument errors,
// 2 on runtime failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/opd-ai/framecast/sender"
	"github.com/opd-ai/framecast/transport"
	"github.com/opd-ai/framecast/video"
)

func main() {
	configureLogging()

	app := &cli.App{
		Name:      "framecast-sender",
		Usage:     "adaptive real-time video sender",
		ArgsUsage: "QUANTIZER HOST PORT CONNECTION_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "rate control mode: fixed or feedback",
				Value: "fixed",
			},
			&cli.IntFlag{
				Name:  "fps",
				Usage: "frames per second (cycle rate)",
				Value: 12,
			},
			&cli.BoolFlag{
				Name:  "monotonic-acks",
				Usage: "reject acknowledgments that would move the acked index backward",
			},
		},
		Action:          run,
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 4 {
		return cli.Exit(fmt.Sprintf("Usage: %s [options] QUANTIZER HOST PORT CONNECTION_ID", c.App.Name), 1)
	}

	config, err := buildConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	host := c.Args().Get(1)
	port := c.Args().Get(2)
	if _, err := paranoidUint(port, 16); err != nil {
		return cli.Exit(fmt.Sprintf("invalid port: %v", err), 1)
	}

	input, err := video.NewY4MReader(os.Stdin)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open input: %v", err), 1)
	}

	encoder, err := video.NewBlockEncoder(input.DisplayWidth(), input.DisplayHeight())
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create encoder: %v", err), 1)
	}

	conn, err := transport.Dial(host, port)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to connect: %v", err), 2)
	}
	defer conn.Close()

	s, err := sender.New(config, input, conn, sender.WrapBlockEncoder(encoder))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create sender: %v", err), 1)
	}
	conn.SetHandler(s.HandleDatagram)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch err := s.Run(ctx); {
	case errors.Is(err, sender.ErrEndOfStream):
		// Clean shutdown: the input ran out of frames.
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return cli.Exit(fmt.Sprintf("sender failed: %v", err), 2)
	default:
		return nil
	}
}

// buildConfig maps CLI arguments and flags onto the sender configuration.
func buildConfig(c *cli.Context) (*sender.Config, error) {
	config := sender.DefaultConfig()

	quantizer, err := paranoidUint(c.Args().Get(0), 8)
	if err != nil {
		return nil, fmt.Errorf("invalid quantizer: %w", err)
	}
	config.Quantizer = uint8(quantizer)

	connectionID, err := paranoidUint(c.Args().Get(3), 16)
	if err != nil {
		return nil, fmt.Errorf("invalid connection id: %w", err)
	}
	config.ConnectionID = uint16(connectionID)

	switch c.String("mode") {
	case "fixed":
		config.Mode = sender.ModeFixedQuality
	case "feedback":
		config.Mode = sender.ModeFeedback
	default:
		return nil, fmt.Errorf("invalid mode %q: want fixed or feedback", c.String("mode"))
	}

	config.FPS = c.Int("fps")
	config.MonotonicAcks = c.Bool("monotonic-acks")

	return config, config.Validate()
}

// paranoidUint parses a non-negative integer strictly: the input must
// round-trip back to the same string, ruling out signs, leading zeros and
// whitespace that ParseUint would otherwise tolerate in spirit.
func paranoidUint(in string, bits int) (uint64, error) {
	value, err := strconv.ParseUint(in, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid unsigned integer %q", in)
	}
	if strconv.FormatUint(value, 10) != in {
		return 0, fmt.Errorf("invalid unsigned integer %q", in)
	}
	return value, nil
}

// configureLogging sets the log level from FRAMECAST_LOG_LEVEL, defaulting
// to info.
func configureLogging() {
	logrus.SetOutput(os.Stderr)

	level := os.Getenv("FRAMECAST_LOG_LEVEL")
	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.WithFields(logrus.Fields{
			"function": "configureLogging",
			"level":    level,
		}).Warn("Unknown log level, using info")
		return
	}
	logrus.SetLevel(parsed)
}
