package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	VK struct {
		Token        string `envconfig:"VK_TOKEN"`
		APIURL       string `envconfig:"VK_API_URL" default:"https://api.vk.com/method/"`
		APIVersion   string `envconfig:"VK_API_VERSION" default:"5.103"`
		LongPollWait int    `envconfig:"LONGPOLL_WAIT" default:"25"`
	} `envconfig:""`

	Behavior string  `envconfig:"BEHAVIOR" default:"stone"`
	AdminIDs []int64 `envconfig:"ADMIN_IDS"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	GameFile string `envconfig:"GAME_FILE"`

	Delays struct {
		Success time.Duration `envconfig:"MSG_DELAY_SUCCESS" default:"2s"`
		Fail    time.Duration `envconfig:"MSG_DELAY_FAIL" default:"5s"`
	} `envconfig:""`

	Workers          int           `envconfig:"WORKERS" default:"16"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR" default:":9090"`
	PollErrorBackoff time.Duration `envconfig:"POLL_ERROR_BACKOFF" default:"5s"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}
