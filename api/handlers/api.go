package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/api"
	"github.com/linesmerrill/planner-alerts/config"
	"github.com/linesmerrill/planner-alerts/databases"
	"github.com/linesmerrill/planner-alerts/feed"
	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/push"
)

// RequestTimeout bounds every REST request. The websocket feed is exempt.
const RequestTimeout = 30 * time.Second

// App stores the router and its collaborators, so it can be reused
type App struct {
	Router *mux.Router
	Config config.Config

	Auth      *api.Auth
	Alerts    databases.AlertDatabase
	Tokens    databases.PushTokenDatabase
	Source    feed.Source
	Publisher Publisher
	Pusher    Pusher

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
	redis    *redis.Client
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := mux.NewRouter()
	r.Use(api.RequestLogger)

	al := Alert{DB: a.Alerts, Tokens: a.Tokens, Publisher: a.Publisher, Pusher: a.Pusher}
	pt := PushToken{DB: a.Tokens}
	af := AlertFeed{Listener: feed.NewListener(a.Source)}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	r.Handle("/ws/alerts", a.Auth.Middleware(http.HandlerFunc(af.AlertFeedHandler))).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(api.TimeoutMiddleware(RequestTimeout))

	apiV1.Handle("/alerts", a.Auth.Middleware(http.HandlerFunc(al.AlertsHandler))).Methods("GET")
	apiV1.Handle("/alerts", a.Auth.ServiceMiddleware(http.HandlerFunc(al.CreateAlertHandler))).Methods("POST")
	apiV1.Handle("/alerts/{alert_id}/read", a.Auth.Middleware(http.HandlerFunc(al.MarkAlertReadHandler))).Methods("PUT")
	apiV1.Handle("/alerts/{alert_id}", a.Auth.Middleware(http.HandlerFunc(al.DeleteAlertHandler))).Methods("DELETE")
	apiV1.Handle("/push-tokens", a.Auth.Middleware(http.HandlerFunc(pt.RegisterPushTokenHandler))).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	if a.Config.JWTSecret == "" {
		zap.S().Errorw("JWT_SECRET is not set")
		return errors.New("JWT_SECRET is required")
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	a.client = client
	zap.S().Info("planner-alerts has connected to the database")

	a.Alerts = databases.NewAlertDatabase(a.dbHelper)
	a.Tokens = databases.NewPushTokenDatabase(a.dbHelper)
	a.Auth = api.NewAuth(a.Config.JWTSecret, a.Config.ServiceToken)
	a.Pusher = push.NewExpoClient(a.Config.ExpoAccessToken)

	switch a.Config.FeedBackend {
	case config.FeedBackendRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			zap.S().Errorw("failed to connect to redis", "addr", a.Config.RedisAddr, "error", err)
			return err
		}
		a.Source = feed.RedisSource{Client: a.redis}
		a.Publisher = feed.RedisPublisher{Client: a.redis}
	case config.FeedBackendMongo, "":
		a.Source = feed.MongoSource{Alerts: a.Alerts}
	default:
		return fmt.Errorf("unknown feed backend %q", a.Config.FeedBackend)
	}
	zap.S().Infow("alert feed configured", "backend", a.Config.FeedBackend)

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close releases the database and redis connections
func (a *App) Close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			zap.S().Warnw("failed to close redis client", "error", err)
		}
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
