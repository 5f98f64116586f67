package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digestbot/internal/bot"
	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/tempfile"
	"digestbot/internal/transcode"
	"digestbot/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// leftovers older than this come from a run that was killed mid-request
const staleTempAge = time.Hour

func main() {
	// Load .env file first
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file (optional)")
	flag.Parse()

	debug := os.Getenv("DEBUG") == "true"
	if err := logger.Init(debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting digestbot service")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}
	if cfg.Debug && !debug {
		_ = logger.Init(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	generator, err := llm.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize AI backend", zap.Error(err))
		return
	}

	files, err := tempfile.NewStore(cfg.Media.TmpDir)
	if err != nil {
		logger.Fatal("Failed to prepare temp dir", zap.Error(err))
		return
	}
	if removed, err := files.Sweep(staleTempAge); err != nil {
		logger.Warn("Failed to sweep temp dir", zap.Error(err))
	} else if removed > 0 {
		logger.Info("Removed stale temp files", zap.Int("count", removed))
	}

	target, err := transcode.ParseFormat(cfg.Convert.Target)
	if err != nil {
		logger.Fatal("Invalid conversion target", zap.Error(err))
		return
	}

	ffmpeg := transcode.NewFFmpeg(cfg.Convert.FFmpegPath)
	if !ffmpeg.Available() {
		logger.Warn("ffmpeg not found, /convert will report an error",
			zap.String("ffmpeg_path", cfg.Convert.FFmpegPath))
	}

	botInstance, err := bot.NewBot(cfg, bot.Deps{
		Generator:  generator,
		Files:      files,
		Transcoder: ffmpeg,
		Target:     target,
	})
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
		return
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting Telegram bot",
			zap.String("ai_backend", cfg.AI.Backend),
			zap.String("ai_model", cfg.AI.Model),
			zap.String("convert_target", target.Name))
		botInstance.Start()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	cancel()
	botInstance.Stop()

	logger.Info("Bot service shutdown complete")
}
