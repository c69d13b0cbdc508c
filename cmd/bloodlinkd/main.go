package main

import (
	"bloodlink/internal/config"
	"bloodlink/internal/infra/db"
	httpinfra "bloodlink/internal/infra/http"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.FromEnv()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init store")
	}

	srv := httpinfra.NewServer(cfg, store, log)
	log.WithField("addr", cfg.HTTPAddr).Info("bloodlinkd listening")
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
