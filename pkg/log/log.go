package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// Setup builds the root logger for a run. Development mode switches to the
// human-readable console encoder with caller annotations.
func Setup(development bool) logr.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = true
	}

	zl, err := cfg.Build()
	if err != nil {
		// The static configs above cannot fail; reaching this means the zap
		// defaults themselves are broken.
		panic(err)
	}

	return zapr.NewLogger(zl)
}
