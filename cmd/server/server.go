package main

import (
	"context"
	"errors"
	repository "github.com/adamlounds/glucoscope/adapters"
	"github.com/adamlounds/glucoscope/config"
	"github.com/adamlounds/glucoscope/controllers"
	"github.com/adamlounds/glucoscope/models"
	bucketstore "github.com/adamlounds/glucoscope/stores/bucket"
	inferencestore "github.com/adamlounds/glucoscope/stores/inference"
	pgstore "github.com/adamlounds/glucoscope/stores/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	socketio "github.com/googollee/go-socket.io"
	"github.com/joho/godotenv"
	slogctx "github.com/veqryn/slog-context"
	"io/fs"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// a .env file is optional, real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	var cfg config.ServerConfig
	err := cfg.RegisterEnv()
	if err != nil {
		panic(err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	h := slogctx.NewHandler(slog.NewJSONHandler(os.Stdout, opts), nil)
	log := slog.New(h)
	slog.SetDefault(log.With(slog.Int("pid", os.Getpid())))
	ctx := slogctx.NewCtx(context.Background(), slog.Default())

	run(ctx, cfg)
}

type waiter interface {
	Wait()
}

func run(ctx context.Context, cfg config.ServerConfig) {
	log := slogctx.FromCtx(ctx)
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	bs, err := bucketstore.New(cfg.S3Config)
	if err != nil {
		log.Error("run cannot configure s3 storage", slog.Any("error", err))
		os.Exit(1)
	}

	err = bs.Ping(serverCtx)
	if err != nil {
		log.Error("run cannot ping s3 storage", slog.Any("error", err))
		os.Exit(1)
	}

	subjects := make(map[string]*models.AuthSubject, len(cfg.AuthSubjects))
	for _, s := range cfg.AuthSubjects {
		subjects[s.Token] = &models.AuthSubject{Name: s.Name, UserID: s.UserID, RoleNames: s.Roles}
	}
	authRepository := repository.NewConfigAuthRepository(cfg.APISecretHash, cfg.DefaultRole, cfg.AdminUserID, subjects)
	authService := &models.AuthService{AuthRepository: authRepository}

	readingRepository := repository.NewBucketReadingRepository(bs)
	eventRepository := repository.NewBucketEventRepository(bs)
	profileRepository := repository.NewBucketProfileRepository(bs)
	pending := []waiter{readingRepository, eventRepository}

	if err = readingRepository.Boot(serverCtx); err != nil {
		log.Error("run cannot fetch readings", slog.Any("error", err))
	}
	if err = eventRepository.Boot(serverCtx); err != nil {
		log.Error("run cannot fetch events", slog.Any("error", err))
	}
	if err = profileRepository.Boot(serverCtx); err != nil {
		log.Error("run cannot fetch profiles", slog.Any("error", err))
	}

	var forecastRepository models.ForecastRepository
	if cfg.Postgres.Enabled() {
		pg, err := pgstore.New(serverCtx, cfg.Postgres.String())
		if err != nil {
			log.Error("run cannot connect to postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pg.Close()
		if err = pg.Ping(serverCtx); err != nil {
			log.Error("run cannot ping postgres", slog.Any("error", err))
			os.Exit(1)
		}
		pgForecasts := repository.NewPostgresForecastRepository(pg)
		if err = pgForecasts.Migrate(serverCtx); err != nil {
			log.Error("run cannot migrate postgres", slog.Any("error", err))
			os.Exit(1)
		}
		forecastRepository = pgForecasts
	} else {
		bucketForecasts := repository.NewBucketForecastRepository(bs)
		if err = bucketForecasts.Boot(serverCtx); err != nil {
			log.Error("run cannot fetch forecasts", slog.Any("error", err))
		}
		pending = append(pending, bucketForecasts)
		forecastRepository = bucketForecasts
	}

	sockSvr := socketio.NewServer(nil)
	socketC := controllers.SocketController{
		Context:     serverCtx,
		SockSvr:     sockSvr,
		AuthService: authService,
	}
	sockSvr.OnConnect("/", socketC.OnConnect)
	sockSvr.OnEvent("/", "authorize", socketC.Authorize)
	sockSvr.OnError("/", socketC.OnError)
	sockSvr.OnDisconnect("/", socketC.OnDisconnect)
	go func() {
		if err := sockSvr.Serve(); err != nil {
			log.Error("socketio listen error", slog.Any("error", err))
		}
	}()
	defer sockSvr.Close()

	forecastService := &models.ForecastService{
		Readings:  readingRepository,
		Forecasts: forecastRepository,
		Features: models.FeatureBuilder{
			EventRepository:   eventRepository,
			ProfileRepository: profileRepository,
		},
		Notifier:     socketC,
		Classifier:   models.DirectionClassifier{Threshold: cfg.Forecast.DirectionThreshold},
		MaxAge:       cfg.Forecast.CacheTTL,
		ModelTimeout: cfg.Inference.Timeout,
	}
	if cfg.Inference.URL != "" {
		store, err := inferencestore.New(cfg.Inference.URL, cfg.Inference.Timeout)
		if err != nil {
			log.Error("run cannot configure inference service", slog.Any("error", err))
			os.Exit(1)
		}
		forecastService.Model = repository.NewInferenceRepository(store)
	} else {
		log.Info("no INFERENCE_URL, forecasts use the fallback predictor")
	}

	analyticsService := &models.AnalyticsService{
		Readings:        readingRepository,
		HbA1cFetchLimit: cfg.HbA1cLimit,
		RangeLowMgdl:    models.DefaultRangeLowMgdl,
		RangeHighMgdl:   models.DefaultRangeHighMgdl,
	}

	apiV1C := controllers.ApiV1{
		Forecasts: forecastService,
		Insights:  analyticsService,
		Readings:  readingRepository,
		Events:    eventRepository,
	}
	apiV1mw := controllers.ApiV1AuthnMiddleware{
		AuthService: authService,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.StripSlashes)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiV1mw.SetAuthentication)
		r.Use(middleware.URLFormat)
		r.With(apiV1mw.Authz("api:forecast:read")).Get("/forecast", apiV1C.Forecast)
		r.With(apiV1mw.Authz("api:readings:read")).Get("/readings", apiV1C.ListReadings)
		r.With(apiV1mw.Authz("api:readings:create")).Post("/readings", apiV1C.CreateReadings)
		r.With(apiV1mw.Authz("api:meals:create")).Post("/meals", apiV1C.CreateMeals)
		r.With(apiV1mw.Authz("api:medications:create")).Post("/medications", apiV1C.CreateMedications)
		r.Route("/insights", func(r chi.Router) {
			r.Use(apiV1mw.Authz("api:insights:read"))
			r.Get("/trend", apiV1C.Trend)
			r.Get("/hba1c", apiV1C.HbA1c)
			r.Get("/time-in-range", apiV1C.TimeInRange)
		})
	})
	// StripSlashes turns /socket.io/ into /socket.io before routing
	r.Handle("/socket.io", sockSvr)
	r.Handle("/socket.io/*", sockSvr)
	r.Mount("/debug", middleware.Profiler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bs.Ping(r.Context()); err != nil {
			log.Warn("healthz: bucket unavailable", slog.Any("error", err))
			http.Error(w, "bucket unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok")) //nolint:errcheck
	})

	server := &http.Server{Addr: cfg.Server.Address, Handler: r}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		shutdownCtx, _ := context.WithTimeout(serverCtx, time.Second*10) //nolint:govet
		go func() {
			<-shutdownCtx.Done()
			if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
				log.Error("graceful shutdown timed out, forcing exit")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("cannot shutdown server", slog.Any("error", err))
		}
		// no new writes can start now, let in-flight bucket uploads finish
		for _, p := range pending {
			p.Wait()
		}
		serverStopCtx()
	}()

	log.Info("Starting server on", "address", cfg.Server.Address)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server terminated", slog.Any("error", err))
	}
	log.Info("shutdown ok")
	<-serverCtx.Done()
}
