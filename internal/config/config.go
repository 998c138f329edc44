package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"os"
	"time"
)

type Config struct {
	Env        string `yaml:"env" env-required:"true"`
	SimplyOrg  `yaml:"simplyorg"`
	Store      `yaml:"store"`
	Sync       `yaml:"sync"`
	HTTPServer `yaml:"http_server"`
	Prometheus `yaml:"prometheus"`
	ClickHouse `yaml:"clickhouse"`
	Kafka      `yaml:"kafka"`
	App        `yaml:"app"`
}

type SimplyOrg struct {
	BaseURL      string        `yaml:"base_url" env:"SIMPLYORG_BASE_URL" env-required:"true"`
	Email        string        `yaml:"email" env:"SIMPLYORG_EMAIL" env-required:"true"`
	Password     string        `yaml:"password" env:"SIMPLYORG_PASSWORD" env-required:"true"`
	LoginPath    string        `yaml:"login_path" env-default:"/Account/Login"`
	SchedulePath string        `yaml:"schedule_path" env-default:"/Seminar/GetSeminarSchedule"`
	AuthTimeout  time.Duration `yaml:"auth_timeout" env-default:"10s"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env-default:"60s"`
}

type Store struct {
	Driver            string        `yaml:"driver" env-default:"sqlite"`
	DSN               string        `yaml:"dsn" env:"STORE_DSN" env-required:"true"`
	EventEntityType   string        `yaml:"event_entity_type" env-default:"seminar"`
	TrainerEntityType string        `yaml:"trainer_entity_type" env-default:"trainer"`
	RetryConnAttempts uint          `yaml:"retry_conn_attempts" env-default:"3"`
	RetryConnDelay    time.Duration `yaml:"retry_conn_delay" env-default:"1s"`
	RetryConnMaxDelay time.Duration `yaml:"retry_conn_max_delay" env-default:"5s"`
}

type Sync struct {
	WindowYears      uint   `yaml:"window_years" env-default:"1"`
	CronWindowYears  uint   `yaml:"cron_window_years" env-default:"2"`
	CronEnabled      bool   `yaml:"cron_enabled" env-default:"true"`
	CronSpec         string `yaml:"cron_spec" env-default:"0 3 * * *"`
	RentalCategory   string `yaml:"rental_category" env-default:"Einmietung"`
	CourseCategory   string `yaml:"course_category" env-default:"Lehrgang"`
	DefaultStartTime string `yaml:"default_start_time" env-default:"09:00:00"`
	DefaultEndTime   string `yaml:"default_end_time" env-default:"16:00:00"`
}

type HTTPServer struct {
	Host         string        `yaml:"host" env-default:"0.0.0.0"`
	Port         uint          `yaml:"port" env-default:"8080"`
	APIKey       string        `yaml:"api_key" env:"SYNC_API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"120s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Prometheus struct {
	HOST string `yaml:"host" env-required:"true"`
	PORT uint   `yaml:"port" env-required:"true"`
}

type ClickHouse struct {
	Enabled             bool          `yaml:"enabled" env-default:"false"`
	Host                string        `yaml:"host" env-default:"localhost"`
	Port                int           `yaml:"port" env-default:"9000"`
	Database            string        `yaml:"database" env-default:"default"`
	Username            string        `yaml:"username" env-default:"default"`
	Password            string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	MaxExecutionTime    int           `yaml:"max_execution_time" env-default:"60"`
	CompressionMethod   string        `yaml:"compression_method" env-default:"lz4"`
	DialTimeout         time.Duration `yaml:"dial_timeout" env-default:"5s"`
	MaxOpenConns        int           `yaml:"max_open_conns" env-default:"5"`
	MaxIdleConns        int           `yaml:"max_idle_conns" env-default:"2"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" env-default:"1h"`
	BlockBufferSize     uint8         `yaml:"block_buffer_size" env-default:"10"`
	RetryConnAttempts   uint          `yaml:"retry_conn_attempts" env-default:"3"`
	RetryConnDelay      time.Duration `yaml:"retry_conn_delay" env-default:"1s"`
	RetryConnMaxDelay   time.Duration `yaml:"retry_conn_max_delay" env-default:"5s"`
	RetryInsertAttempts uint          `yaml:"retry_insert_attempts" env-default:"5"`
	RetryInsertDelay    time.Duration `yaml:"retry_insert_delay" env-default:"200ms"`
	RetryInsertMaxDelay time.Duration `yaml:"retry_insert_max_delay" env-default:"2s"`
}

type Kafka struct {
	Enabled     bool     `yaml:"enabled" env-default:"false"`
	Brokers     []string `yaml:"brokers" env-default:"localhost:9092"`
	Version     string   `yaml:"version" env-default:"3.6.0"`
	ReportTopic string   `yaml:"report_topic" env-default:"simplyorg.sync.reports"`
}

type App struct {
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" env-default:"15s"`
}

func MustLoad() (cfg Config) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH environment variable not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatal("CONFIG_PATH does not exist")
	}

	err := cleanenv.ReadConfig(configPath, &cfg)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	return
}
