package config

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/models"
)

// Feed backends supported by the API server
const (
	FeedBackendMongo = "mongo"
	FeedBackendRedis = "redis"
)

// Config holds the project config values
type Config struct {
	URL             string
	DatabaseName    string
	BaseURL         string
	Port            string
	Environment     string
	JWTSecret       string
	ServiceToken    string
	RedisAddr       string
	FeedBackend     string
	ExpoProjectID   string
	ExpoAccessToken string
	RefreshSpec     string
}

// New sets up all config related services
func New() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "local")
	v.SetDefault("FEED_BACKEND", FeedBackendMongo)
	v.SetDefault("REFRESH_SPEC", "@every 5m")

	conf := &Config{
		URL:             v.GetString("DB_URI"),
		DatabaseName:    v.GetString("DB_NAME"),
		BaseURL:         v.GetString("BASE_URL"),
		Port:            v.GetString("PORT"),
		Environment:     v.GetString("ENVIRONMENT"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		ServiceToken:    v.GetString("SERVICE_TOKEN"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		FeedBackend:     v.GetString("FEED_BACKEND"),
		ExpoProjectID:   v.GetString("EXPO_PROJECT_ID"),
		ExpoAccessToken: v.GetString("EXPO_ACCESS_TOKEN"),
		RefreshSpec:     v.GetString("REFRESH_SPEC"),
	}

	//setup zap logger and replace default logger
	logger, err := setLogger(conf.Environment)
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)

	return conf
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: errString(err)}})
	w.Write(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
