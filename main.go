package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hexflows/tripflow-backend/internal/config"
	"github.com/hexflows/tripflow-backend/internal/db"
	"github.com/hexflows/tripflow-backend/internal/flows"
	"github.com/hexflows/tripflow-backend/internal/middleware"
	"github.com/hexflows/tripflow-backend/internal/rpc"
	"github.com/hexflows/tripflow-backend/internal/share"
	"github.com/joho/godotenv"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}

	db.Connect(cfg)
	share.Init()

	caller := rpc.NewGormCaller(db.DB, cfg.SlowQuery)
	flowsHandler := flows.NewHandler(caller, cfg)
	shareHandler := &share.Handler{Store: share.GormStore{DB: db.DB}, BaseURL: cfg.ShareBaseURL}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	r.Get("/", RootHandler)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(middleware.BearerToken)
		r.Mount("/functions", flows.SetupRoutes(flowsHandler))
		r.Mount("/share", share.SetupRoutes(shareHandler))
	})

	log.Printf("Server listening on port :%s...", cfg.Port)

	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
