package initialize

import (
	"fmt"
	"net/http"

	"droidfleet/backend/app/controllers"
	"droidfleet/backend/app/db"
	jwtutil "droidfleet/backend/app/jwt"
	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/middleware"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/repo"
	"droidfleet/backend/app/services"
	"droidfleet/backend/app/store"
	"droidfleet/backend/config"
	"droidfleet/backend/global"
	"droidfleet/backend/router"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Cfg       *config.Config
	DB        *gorm.DB
	Router    http.Handler
	Scheduler *services.TaskScheduler
	Queue     *services.InstructionQueueService
	Tracker   *services.HeartbeatService
}

func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = cfg
	ApplyLogLevel(cfg.LogLevel)

	gdb, err := db.Connect(db.Config{
		Driver:     cfg.DB.Driver,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Pass,
		DBName:     cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	global.Mdb = gdb

	if err := gdb.AutoMigrate(&models.User{}, &models.Device{}, &models.DeviceGroup{}, &models.Script{}, &models.Task{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	global.Rdb = rdb

	var st store.Store = store.NewRedisStore(rdb)
	if cfg.Redis.Notify == "polling" {
		// Providers without SUBSCRIBE fall back to counter polling.
		st = store.NewPollingStore(store.NewRedisStore(rdb))
	}
	locker := lock.NewRedisLocker(rdb)

	// Repos
	userRepo := repo.NewUserRepository(gdb)
	deviceRepo := repo.NewDeviceRepository(gdb)
	taskRepo := repo.NewTaskRepository(gdb)
	scriptRepo := repo.NewScriptRepository(gdb)
	groupRepo := repo.NewGroupRepository(gdb)

	// Services
	userSvc := services.NewUserService(userRepo)
	if err := userSvc.EnsureAdmin(cfg.Admin.Username, cfg.Admin.Password); err != nil {
		global.Logger.Warn().Err(err).Msg("admin bootstrap failed")
	}
	tracker := services.NewHeartbeatService(st, locker, global.Logger)
	queue := services.NewInstructionQueueService(st, locker, deviceRepo, global.Logger)
	resolver := services.NewTargetResolver(deviceRepo)
	dispatcher := services.NewTaskDispatcher(resolver, queue, taskRepo, global.Logger)
	dispatcher.InstructionTimeoutSeconds = cfg.Queue.InstructionTimeoutSeconds
	dispatcher.Trail = queue
	scheduler := services.NewTaskScheduler(taskRepo, dispatcher, locker, services.StandardCron{}, global.Logger)

	// Controllers
	signer := &jwtutil.Signer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, ExpMin: cfg.JWT.ExpMin}
	mw := &middleware.Auth{Signer: signer}
	authCtrl := controllers.NewAuthController(userSvc, signer)
	deviceCtrl := controllers.NewDeviceController(deviceRepo, tracker, queue, signer, cfg.Queue.MaxPollSeconds)
	taskCtrl := controllers.NewTaskController(taskRepo, scriptRepo, groupRepo, scheduler, dispatcher)
	queueCtrl := controllers.NewQueueController(queue)
	catalogCtrl := controllers.NewCatalogController(scriptRepo, groupRepo, queue)

	h := router.NewRouter(authCtrl, deviceCtrl, taskCtrl, queueCtrl, catalogCtrl, mw)
	h = middleware.Logging(h)

	return &App{
		Cfg:       cfg,
		DB:        gdb,
		Router:    h,
		Scheduler: scheduler,
		Queue:     queue,
		Tracker:   tracker,
	}, nil
}
