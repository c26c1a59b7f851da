// Package internal holds the bits shared by the auxiliary binaries:
// their configuration and the read-only inspection server.
package internal

import "time"

// Config is the environment of the inspection tooling. It deliberately
// overlaps with the broker's config so both read the same .env file.
type Config struct {
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	DebugPort      int           `env:"DEBUG_PORT,default=8089"`
	RefreshPeriod  time.Duration `env:"REFRESH_PERIOD,default=5s"`
}
