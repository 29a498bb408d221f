package config

import "go.uber.org/zap"

// setLogger picks the zap logger for the given environment. Unknown environments get the
// example logger, which logs everything from debug up.
func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}
