package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		BookAPI
		ImageHost
		Search
		Session
		Database
		Audit
		Tasks
		Workspace
		UI
		Logging
		Telemetry
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	BookAPI struct {
		BaseURL        string
		Timeout        time.Duration
		RequestsPerSec float64 // client-side throttle, 0 disables
		Burst          int
	}
	ImageHost struct {
		BaseURL      string // Cloudinary API root
		CloudName    string // account identifier
		UploadPreset string // unsigned upload preset identifier
		Timeout      time.Duration
		MaxFileBytes int64

		// KeepPreviousOnFailure restores the previous preview when a replacement upload fails
		KeepPreviousOnFailure bool
	}
	Search struct {
		Debounce time.Duration
	}
	Session struct {
		Secret        string
		Lifetime      time.Duration
		SecureCookies bool // Set to false for local dev without HTTPS
	}
	Database struct {
		Path string
	}
	Audit struct {
		RetentionDays   int    // Days to keep audit events (default: 30)
		CleanupSchedule string // Cron format: "0 3 * * *" = nightly
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Workspace struct {
		IdleTimeout   time.Duration // workspaces idle longer than this are torn down
		SweepSchedule string        // Cron format: "*/5 * * * *"
	}
	UI struct {
		TemplatesPath string // optional override for the embedded templates
		StaticPath    string
	}
	Logging struct {
		Level       string
		Development bool
	}
	Telemetry struct {
		ExporterURL string // OTLP/HTTP traces endpoint; empty disables export
		ServiceName string
	}
)

// NewConfig reads configuration from the environment, after loading an optional .env file.
func NewConfig() *Config {
	// A missing .env is the normal case in production
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8080)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("book_api_url", DefaultBookAPIURL)
	v.SetDefault("book_api_timeout", "10s")
	v.SetDefault("book_api_rps", 20)
	v.SetDefault("book_api_burst", 10)

	v.SetDefault("cloudinary_base_url", "https://api.cloudinary.com")
	v.SetDefault("cloudinary_cloud_name", "")
	v.SetDefault("cloudinary_upload_preset", "")
	v.SetDefault("cloudinary_timeout", "60s")
	v.SetDefault("cloudinary_max_file_bytes", 10<<20) // 10MB, as advertised on the upload widget
	v.SetDefault("upload_keep_previous_on_failure", false)

	v.SetDefault("search_debounce", DefaultSearchDebounce.String())

	v.SetDefault("session_secret", "") // Auto-generated if empty
	v.SetDefault("session_lifetime", "24h")
	v.SetDefault("session_secure_cookies", true)

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("audit_cleanup_schedule", "0 3 * * *")

	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("workspace_idle_timeout", "30m")
	v.SetDefault("workspace_sweep_schedule", "*/5 * * * *")

	v.SetDefault("templates_path", "")
	v.SetDefault("static_path", "./static")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)

	v.SetDefault("otel_exporter_url", "")
	v.SetDefault("otel_service_name", "bookshelf")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		BookAPI: BookAPI{
			BaseURL:        v.GetString("BOOK_API_URL"),
			Timeout:        v.GetDuration("BOOK_API_TIMEOUT"),
			RequestsPerSec: v.GetFloat64("BOOK_API_RPS"),
			Burst:          v.GetInt("BOOK_API_BURST"),
		},
		ImageHost: ImageHost{
			BaseURL:      v.GetString("CLOUDINARY_BASE_URL"),
			CloudName:    v.GetString("CLOUDINARY_CLOUD_NAME"),
			UploadPreset: v.GetString("CLOUDINARY_UPLOAD_PRESET"),
			Timeout:      v.GetDuration("CLOUDINARY_TIMEOUT"),
			MaxFileBytes: v.GetInt64("CLOUDINARY_MAX_FILE_BYTES"),

			KeepPreviousOnFailure: v.GetBool("UPLOAD_KEEP_PREVIOUS_ON_FAILURE"),
		},
		Search: Search{
			Debounce: v.GetDuration("SEARCH_DEBOUNCE"),
		},
		Session: Session{
			Secret:        v.GetString("SESSION_SECRET"),
			Lifetime:      v.GetDuration("SESSION_LIFETIME"),
			SecureCookies: v.GetBool("SESSION_SECURE_COOKIES"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Audit: Audit{
			RetentionDays:   v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Workspace: Workspace{
			IdleTimeout:   v.GetDuration("WORKSPACE_IDLE_TIMEOUT"),
			SweepSchedule: v.GetString("WORKSPACE_SWEEP_SCHEDULE"),
		},
		UI: UI{
			TemplatesPath: v.GetString("TEMPLATES_PATH"),
			StaticPath:    v.GetString("STATIC_PATH"),
		},
		Logging: Logging{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
		Telemetry: Telemetry{
			ExporterURL: v.GetString("OTEL_EXPORTER_URL"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
		},
	}
}
