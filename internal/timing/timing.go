// Package timing logs the elapsed time of a named stage, the Go
// equivalent of the original CLI's Timer context manager.
package timing

import (
	"time"

	"go.uber.org/zap"
)

// Track runs fn and logs its elapsed time against reason at Info
// level once fn returns, regardless of whether it returned an error.
func Track(logger *zap.Logger, reason string, fn func() error) error {
	start := time.Now()
	err := fn()
	logger.Info("finished stage", zap.String("stage", reason), zap.Duration("elapsed", time.Since(start)))
	return err
}
