/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string, sinks ...io.Writer) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout, sinks...)
}

// SetupWithWriter configures zerolog to write to out. Development and test
// environments get debug level with console formatting; everything else gets
// JSON lines at info level. Sinks always receive the raw JSON lines.
func SetupWithWriter(environment string, out io.Writer, sinks ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	var writer io.Writer = out

	switch environment {
	case "development", "test":
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if len(sinks) > 0 {
		writer = zerolog.MultiLevelWriter(append([]io.Writer{writer}, sinks...)...)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// Component derives a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
