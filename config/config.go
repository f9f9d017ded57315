package config

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	App           App
	Server        Server
	Media         Media
	ASR           ASR
	Label         Label
	Retention     Retention
	ArchiveBucket string
	DB            *sql.DB
	Queue         *RabbitMQ     // nil when events are disabled
	Storage       *minio.Client // nil when archiving is disabled
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

type Media struct {
	Root        string `yaml:"root"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type ASR struct {
	Engine         string `yaml:"engine"` // "whisper" or "stub"
	PythonBin      string `yaml:"python_bin"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	WordTimestamps bool   `yaml:"word_timestamps"`
}

type Label struct {
	Backend     string `yaml:"backend"` // "lexicon" or "remote"
	LexiconPath string `yaml:"lexicon_path"`
	RemoteURL   string `yaml:"remote_url"`
}

type Retention struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	MaxAgeHours     int    `yaml:"max_age_hours"`
	Status          string `yaml:"status"` // empty = all statuses
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("media.root", "media")
	viper.SetDefault("media.max_upload_mb", 512)
	viper.SetDefault("asr.engine", "whisper")
	viper.SetDefault("asr.python_bin", "python")
	viper.SetDefault("asr.model", "base.en")
	viper.SetDefault("asr.language", "en")
	viper.SetDefault("label.backend", "lexicon")
	viper.SetDefault("retention.interval_minutes", 60)
	viper.SetDefault("retention.max_age_hours", 168)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgres_dsn"))
	if err != nil {
		return nil, err
	}

	var rabbitmq *RabbitMQ
	if viper.GetString("rabbitmq_host") != "" {
		rabbitmq = &RabbitMQ{
			Host:         viper.GetString("rabbitmq_host"),
			Port:         viper.GetInt("rabbitmq_port"),
			User:         viper.GetString("rabbitmq_user"),
			Pass:         viper.GetString("rabbitmq_pass"),
			ExchangeName: viper.GetString("rabbitmq_exchange"),
			Kind:         viper.GetString("rabbitmq_kind"),
		}
	}

	var minioClient *minio.Client
	if viper.GetString("minio.url") != "" {
		minioClient, err = minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Media: Media{
			Root:        viper.GetString("media.root"),
			MaxUploadMB: viper.GetInt64("media.max_upload_mb"),
		},
		ASR: ASR{
			Engine:         viper.GetString("asr.engine"),
			PythonBin:      viper.GetString("asr.python_bin"),
			Model:          viper.GetString("asr.model"),
			Language:       viper.GetString("asr.language"),
			WordTimestamps: viper.GetBool("asr.word_timestamps"),
		},
		Label: Label{
			Backend:     viper.GetString("label.backend"),
			LexiconPath: viper.GetString("label.lexicon_path"),
			RemoteURL:   viper.GetString("label.remote_url"),
		},
		Retention: Retention{
			Enabled:         viper.GetBool("retention.enabled"),
			IntervalMinutes: viper.GetInt("retention.interval_minutes"),
			MaxAgeHours:     viper.GetInt("retention.max_age_hours"),
			Status:          viper.GetString("retention.status"),
		},
		ArchiveBucket: viper.GetString("minio.bucket"),
		DB:            db,
		Queue:         rabbitmq,
		Storage:       minioClient,
	}, nil
}
