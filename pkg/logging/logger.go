// Package logging builds the process logger and sanitises values before they are logged.
package logging

import (
	"go.uber.org/zap"
)

// NewLogger returns a development logger for env "local" and a JSON production
// logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "" {
		cfg := zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		return cfg.Build()
	}
	return zap.NewProduction()
}
