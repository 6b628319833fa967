package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/auth"
	"fieldkit/platform/schema"
	"fieldkit/platform/services"
	"fieldkit/platform/storage"
	"fieldkit/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fieldkitEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	OpenAIKey string `env:"OPENAI_API_KEY,required"`

	PublicOrigin string `env:"PUBLIC_ORIGIN,required"`

	ShareDir string `env:"SHARE_DIR"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func loadEnv() fieldkitEnv {
	var cfg fieldkitEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error loading environment variables: %v", err)
	}

	if cfg.MinioEndpoint == "" && cfg.ShareDir == "" {
		log.Fatal("Must specify one of MINIO_ENDPOINT or SHARE_DIR")
	}

	return cfg
}

func postgresDsn(uri string) string {
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.Tables()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func initStorage(env fieldkitEnv) storage.Storage {
	if env.MinioEndpoint != "" {
		store, err := storage.NewObjectStorage(storage.ObjectStorageArgs{
			Endpoint:  env.MinioEndpoint,
			AccessKey: env.MinioAccessKey,
			SecretKey: env.MinioSecretKey,
			Bucket:    env.MinioBucket,
			UseSSL:    env.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("error connecting to object storage: %v", err)
		}
		return store
	}
	return storage.NewSharedDisk(env.ShareDir)
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")
	logDir := flag.String("log_dir", "", "Directory to write log files to. Logs only go to stderr if unset.")
	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	logPath := ""
	auditStream := os.Stderr
	if *logDir != "" {
		if err := os.MkdirAll(*logDir, 0777); err != nil {
			log.Fatalf("error creating log dir: %v", err)
		}
		logPath = filepath.Join(*logDir, "fieldkit.log")

		auditFile, err := os.OpenFile(filepath.Join(*logDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		if err != nil {
			log.Fatalf("error opening audit log file: %v", err)
		}
		defer auditFile.Close()
		auditStream = auditFile
	}

	logCloser, err := logging.Setup(logPath, false)
	if err != nil {
		log.Fatalf("error initializing logging: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	db := initDb(postgresDsn(env.DatabaseUri))

	store := initStorage(env)

	client := assistantapi.NewOpenAI(env.OpenAIKey)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditStream),
		auth.BasicProviderArgs{
			Secret:        []byte(env.JwtSecret),
			AdminUsername: env.AdminUsername,
			AdminEmail:    env.AdminEmail,
			AdminPassword: env.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	platform := services.NewPlatform(db, client, store, identityProvider, services.LogMailer{}, []byte(env.JwtSecret))

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.PublicOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", platform.Routes())
	r.Mount("/api/images", platform.ImageRoutes())
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: r}

	go func() {
		slog.Info("starting server", "port", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen and serve returned error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}
}
