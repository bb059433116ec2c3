package main

import (
	"context"
	"net/http"

	"lasso-go/internal/config"
	"lasso-go/internal/database"
	logger "lasso-go/internal/logging"
	"lasso-go/internal/router"
	"lasso-go/internal/services"
	"lasso-go/internal/stimulus"

	"go.uber.org/zap"
)

func main() {
	// Initialize Config
	if err := config.Init("."); err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	conf := config.Conf

	// Initialize Logger
	log, err := logger.Init(".", conf.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	config.Watch(log)

	// Initialize Database
	if err := database.Init(conf.Database, log); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Load the stimulus before accepting any trial
	ctx, cancel := context.WithTimeout(context.Background(), conf.Trial.FetchTimeout)
	stim, err := stimulus.Fetch(ctx, conf.Trial.StimulusSource, &http.Client{Timeout: conf.Trial.FetchTimeout})
	cancel()
	if err != nil {
		log.Fatal("Failed to load stimulus", zap.String("source", conf.Trial.StimulusSource), zap.Error(err))
	}
	if err := stimulus.Validate(stim, conf.Trial.CanvasWidth, conf.Trial.CanvasHeight); err != nil {
		log.Fatal("Invalid stimulus", zap.Error(err))
	}
	log.Info("Stimulus loaded", zap.Int("points", len(stim.Points)))

	trials := services.NewTrialService(log, *stim, services.NewDatabaseResultStore(log), services.TrialOptions{
		CanvasWidth:  conf.Trial.CanvasWidth,
		CanvasHeight: conf.Trial.CanvasHeight,
		IdleTimeout:  conf.Trial.IdleTimeout,
		MaxOpen:      conf.Trial.MaxOpen,
	})
	defer trials.Close()

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	services.NewScheduler(log, trials, conf.Database.Retention).Start(schedCtx)

	r := router.Setup(log, router.Deps{Trials: trials, Stimulus: *stim})

	// Start the Gin server
	port := ":" + conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Error("Failed to run Gin server", zap.Error(err))
	}
}
