package logging

import "go.uber.org/zap"

// New creates a new production zap logger. Command line tools use it when they want a
// logger that is independent of the global one installed by config.New.
func New() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger.Sugar()
}
