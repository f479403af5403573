package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vitalgate/internal/config"
	"vitalgate/internal/consumer"
	"vitalgate/internal/database"
	"vitalgate/internal/events"
	httpapi "vitalgate/internal/http"
	"vitalgate/internal/logger"
	"vitalgate/internal/mqtt"
	"vitalgate/internal/repository"
	"vitalgate/internal/service"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitalgate")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting vitalgate",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("db_enabled", cfg.DBEnabled),
		zap.Bool("events_enabled", cfg.Events.Enabled),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)

	// 仓储：优先 Postgres；连接失败回退内存模式（开发/联测用）
	var (
		db          *sql.DB
		patients    repository.PatientsRepo
		devices     repository.DevicesRepo
		vitals      repository.VitalsRepo
		idempotency repository.IdempotencyRepo
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			zlog.Info("DB enabled for vitalgate")
		} else {
			zlog.Warn("DB enabled but connection failed, falling back to memory repos", zap.Error(err))
		}
	}
	if db != nil {
		if cfg.DBInit {
			if err := database.InitSchema(db); err != nil {
				zlog.Fatal("Failed to initialize schema", zap.Error(err))
			}
		}
		patients = repository.NewPostgresPatientsRepo(db)
		devices = repository.NewPostgresDevicesRepo(db)
		vitals = repository.NewPostgresVitalsRepo(db)
		idempotency = repository.NewPostgresIdempotencyRepo(db)
	} else {
		patients = repository.NewMemoryPatientsRepo()
		devices = repository.NewMemoryDevicesRepo()
		vitals = repository.NewMemoryVitalsRepo()
		idempotency = repository.NewMemoryIdempotencyRepo()
	}

	credentials := service.NewCredentialService(devices, cfg.Auth.MasterKey, zlog)
	deviceSvc := service.NewDeviceService(patients, devices, zlog)
	vitalSvc := service.NewVitalService(db, vitals, idempotency, zlog)

	// 可选事件流（Redis Streams）：不可达时只告警，不影响接入
	var redisClient *redis.Client
	if cfg.Events.Enabled {
		redisClient = events.NewRedisClient(&cfg.Redis)
		if err := events.Ping(context.Background(), redisClient); err != nil {
			zlog.Warn("Redis not reachable, vital events disabled", zap.Error(err))
			_ = events.Close(redisClient)
			redisClient = nil
		} else {
			vitalSvc.SetEventPublisher(events.NewStreamPublisher(redisClient, cfg.Events.Stream, zlog))
			zlog.Info("Vital event stream enabled", zap.String("stream", cfg.Events.Stream))
		}
	}

	router := httpapi.NewRouter(zlog)
	router.RegisterAPIRoutes(
		httpapi.NewDeviceHandler(credentials, deviceSvc, zlog),
		httpapi.NewVitalsHandler(credentials, vitalSvc, zlog),
	)
	doctor := httpapi.NewDoctorHandler(db, redisClient, zlog)
	doctor.EnablePprof(cfg.PprofEnabled)
	router.RegisterDoctorRoutes(doctor)

	srv := service.NewServer(cfg.HTTP.Addr, router, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 可选 MQTT 接入桥
	var mqttConsumer *consumer.MQTTConsumer
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, zlog)
		if err != nil {
			zlog.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttClient, credentials, vitalSvc, zlog)
		go func() {
			if err := mqttConsumer.Start(ctx); err != nil {
				zlog.Error("MQTT consumer stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			zlog.Error("HTTP server failed", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttConsumer != nil {
		_ = mqttConsumer.Stop(shutdownCtx)
	}
	if redisClient != nil {
		_ = events.Close(redisClient)
	}
	if db != nil {
		_ = db.Close()
	}
}
