package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingJWTKey   = errors.New("missing-jwt-key")
	ErrInvalidGameConf = errors.New("invalid-game-config")
	ErrInvalidEnvValue = errors.New("invalid-env-value")
)

// MaxTickRate keeps the tick interval well above timer resolution.
const MaxTickRate = 1000

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Game     GameConfig     `yaml:"game"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	WebsocketPath   string        `yaml:"websocket_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTKey string `yaml:"jwt_key"`
	// TrollTime delays the answer to forged tokens.
	TrollTime time.Duration `yaml:"troll_time"`
	TokenAge  time.Duration `yaml:"token_age"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type GameConfig struct {
	TickRate            int           `yaml:"tick_rate"`
	WinScore            int           `yaml:"win_score"`
	CourtWidth          float64       `yaml:"court_width"`
	CourtHeight         float64       `yaml:"court_height"`
	PaddleWidth         float64       `yaml:"paddle_width"`
	PaddleHeight        float64       `yaml:"paddle_height"`
	PaddleOffset        float64       `yaml:"paddle_offset"`
	PaddleSpeed         float64       `yaml:"paddle_speed"`
	BallRadius          float64       `yaml:"ball_radius"`
	BallSpeed           float64       `yaml:"ball_speed"`
	DisconnectGrace     time.Duration `yaml:"disconnect_grace"`
	TournamentRetention time.Duration `yaml:"tournament_retention"`
	JanitorInterval     time.Duration `yaml:"janitor_interval"`
	InputRate           float64       `yaml:"input_rate"`
	InputBurst          int           `yaml:"input_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			AllowedOrigins:  []string{"http://localhost:3000"},
			WebsocketPath:   "/ws",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TrollTime: 2 * time.Second,
			TokenAge:  7 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			Channel: "pinpon:outcomes",
		},
		Game: GameConfig{
			TickRate:            60,
			WinScore:            5,
			CourtWidth:          800,
			CourtHeight:         600,
			PaddleWidth:         10,
			PaddleHeight:        100,
			PaddleOffset:        20,
			PaddleSpeed:         8,
			BallRadius:          8,
			BallSpeed:           6,
			DisconnectGrace:     10 * time.Second,
			TournamentRetention: 10 * time.Minute,
			JanitorInterval:     time.Minute,
			InputRate:           120,
			InputBurst:          60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an optional
// .env file and finally the process environment. Empty paths are skipped.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		cfg.Server.Addr = ":" + v
	}
	if v, ok := os.LookupEnv("JWT_KEY"); ok {
		cfg.Auth.JWTKey = v
	}
	if v, ok := os.LookupEnv("POSTGRES_URL"); ok {
		cfg.Postgres.URL = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("TICK_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TICK_RATE=%q", ErrInvalidEnvValue, v)
		}
		cfg.Game.TickRate = n
	}
	if v, ok := os.LookupEnv("WIN_SCORE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WIN_SCORE=%q", ErrInvalidEnvValue, v)
		}
		cfg.Game.WinScore = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.Auth.JWTKey == "" {
		return ErrMissingJWTKey
	}
	g := c.Game
	switch {
	case g.TickRate <= 0 || g.TickRate > MaxTickRate:
		return fmt.Errorf("%w: tick_rate must be between 1 and %d", ErrInvalidGameConf, MaxTickRate)
	case g.WinScore <= 0:
		return fmt.Errorf("%w: win_score must be positive", ErrInvalidGameConf)
	case g.CourtWidth <= 2*(g.PaddleOffset+g.PaddleWidth):
		return fmt.Errorf("%w: court too narrow for paddles", ErrInvalidGameConf)
	case g.PaddleHeight <= 0 || g.PaddleHeight >= g.CourtHeight:
		return fmt.Errorf("%w: paddle_height must fit the court", ErrInvalidGameConf)
	case g.BallRadius <= 0 || g.BallSpeed <= 0 || g.PaddleSpeed <= 0:
		return fmt.Errorf("%w: ball and paddle sizes and speeds must be positive", ErrInvalidGameConf)
	case g.DisconnectGrace <= 0:
		return fmt.Errorf("%w: disconnect_grace must be positive", ErrInvalidGameConf)
	case g.JanitorInterval <= 0 || g.TournamentRetention < 0:
		return fmt.Errorf("%w: janitor_interval must be positive and tournament_retention not negative", ErrInvalidGameConf)
	case g.InputRate <= 0 || g.InputBurst <= 0:
		return fmt.Errorf("%w: input_rate and input_burst must be positive", ErrInvalidGameConf)
	}
	return nil
}
