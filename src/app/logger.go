package app

import (
	"go.uber.org/zap"

	"github.com/vaultpage/vaultpage/src/cfg"
	"github.com/vaultpage/vaultpage/src/pkg/utils"
)

// newLogger builds a sugared zap logger, development-flavored (human
// readable, debug-level, caller info) or production-flavored (JSON,
// info-level) depending on the loaded environment.
func newLogger(env cfg.Environment) *zap.SugaredLogger {
	if env == cfg.EnvDev {
		return utils.Must(zap.NewDevelopment()).Sugar()
	}

	return utils.Must(zap.NewProduction()).Sugar()
}
