// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// clmr-convert reads canonical legacy messages as JSON and prints their
// compact representation.
package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	clmr "github.com/ssbc/go-clmr"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""
)

var log kitlog.Logger

var app = cli.App{
	Name:  os.Args[0],
	Usage: "re-serialize canonical legacy messages into their compact form",

	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Value: "-", Usage: "input file with one JSON message or an array of them ('-' for stdin)"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "hex", Usage: "output format: hex, base64 or raw"},
	},

	Action: convert,
}

func main() {
	log = kitlog.NewLogfmtLogger(os.Stderr)

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("%s (rev: %s, built: %s)\n", c.App.Version, Version, Build)
	}

	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("run-failure", err)
		os.Exit(1)
	}
}

func convert(ctx *cli.Context) error {
	var input io.Reader = os.Stdin
	if fname := ctx.String("in"); fname != "-" {
		f, err := os.Open(fname)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	raw, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	msgs, err := splitInput(raw)
	if err != nil {
		return err
	}

	for i, rawMsg := range msgs {
		msg, err := clmr.MessageFromLegacyJSON(rawMsg)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}

		compact, err := clmr.EncodeBytes(msg)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}

		level.Debug(log).Log("msg", i, "author", msg.Author.String(), "seq", msg.Sequence, "bytes", len(compact))

		switch ctx.String("format") {
		case "hex":
			fmt.Println(hex.EncodeToString(compact))
		case "base64":
			fmt.Println(base64.StdEncoding.EncodeToString(compact))
		case "raw":
			if _, err := os.Stdout.Write(compact); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown output format %q", ctx.String("format"))
		}
	}
	return nil
}

// splitInput accepts either a single JSON object or a JSON array of them.
func splitInput(raw []byte) ([]json.RawMessage, error) {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			var msgs []json.RawMessage
			if err := json.Unmarshal(raw, &msgs); err != nil {
				return nil, fmt.Errorf("failed to parse input array: %w", err)
			}
			return msgs, nil
		default:
			return []json.RawMessage{raw}, nil
		}
	}
	return nil, fmt.Errorf("empty input")
}
