package main

import (
	"os"

	"noskid/internal/config"
	"noskid/internal/infra/db"
	httpinfra "noskid/internal/infra/http"
	"noskid/internal/infra/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := db.NewStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to init store")
	}
	defer store.Close()

	srv := httpinfra.NewServer(cfg, store, log)
	defer srv.Close()
	log.WithField("addr", cfg.HTTPAddr).Info("checkd listening")
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
