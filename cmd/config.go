package main

import "time"

type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	JWTKey            string        `env:"JWT_KEY,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=1m"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=5s"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=64"`
	PageSize          int           `env:"PAGE_SIZE,default=20"`
}
