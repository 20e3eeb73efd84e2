package config

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

type ConfigStruct struct {
	WSHost         string   `mapstructure:"WS_HOST"`
	WSPort         int      `mapstructure:"WS_PORT"`
	AllowedOrigins []string `mapstructure:"-"`
	JWTSecret      string   `mapstructure:"JWT_SECRET"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`

	MySQLHost     string `mapstructure:"MYSQL_HOST"`
	MySQLPort     int    `mapstructure:"MYSQL_PORT"`
	MySQLUser     string `mapstructure:"MYSQL_USER"`
	MySQLPassword string `mapstructure:"MYSQL_PASSWORD"`
	MySQLDatabase string `mapstructure:"MYSQL_DATABASE"`

	MongoURI string `mapstructure:"MONGO_URI"`
	MongoDB  string `mapstructure:"MONGO_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	NatsURL     string `mapstructure:"NATS_URL"`
	NatsSubject string `mapstructure:"NATS_SUBJECT"`

	// RelayKinds are game kinds that are only paired and relayed, never simulated.
	RelayKinds []string `mapstructure:"-"`

	Game GameConfig `mapstructure:",squash"`
}

// GameConfig holds the engine tuning values. None of them have a derivation
// beyond play-testing, so they are all overridable.
type GameConfig struct {
	TickInterval        time.Duration `mapstructure:"TICK_INTERVAL"`
	RankedGrace         time.Duration `mapstructure:"RANKED_GRACE"`
	EarlyPairDelay      time.Duration `mapstructure:"EARLY_PAIR_DELAY"`
	ReelDuration        time.Duration `mapstructure:"REEL_DURATION"`
	ProgressGain        float64       `mapstructure:"PROGRESS_GAIN"`
	ProgressDecay       float64       `mapstructure:"PROGRESS_DECAY"`
	TapReward           float64       `mapstructure:"TAP_REWARD"`
	TapPenalty          float64       `mapstructure:"TAP_PENALTY"`
	BotReelHitChance    float64       `mapstructure:"BOT_REEL_HIT_CHANCE"`
	BotStruggleAccuracy float64       `mapstructure:"BOT_STRUGGLE_ACCURACY"`
	InputRate           float64       `mapstructure:"INPUT_RATE"`
	InputBurst          int           `mapstructure:"INPUT_BURST"`
}

var defaults = map[string]any{
	"WS_HOST":         "",
	"WS_PORT":         8080,
	"ALLOWED_ORIGINS": "",
	"JWT_SECRET":      "",
	"LOG_LEVEL":       "info",

	"MYSQL_HOST":     "",
	"MYSQL_PORT":     3306,
	"MYSQL_USER":     "",
	"MYSQL_PASSWORD": "",
	"MYSQL_DATABASE": "",

	"MONGO_URI": "",
	"MONGO_DB":  "duel",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",

	"NATS_URL":     "",
	"NATS_SUBJECT": "duel.results",

	"RELAY_GAME_KINDS": "",

	"TICK_INTERVAL":         100 * time.Millisecond,
	"RANKED_GRACE":          4 * time.Second,
	"EARLY_PAIR_DELAY":      600 * time.Millisecond,
	"REEL_DURATION":         3 * time.Second,
	"PROGRESS_GAIN":         0.1,
	"PROGRESS_DECAY":        0.04,
	"TAP_REWARD":            1.0,
	"TAP_PENALTY":           0.5,
	"BOT_REEL_HIT_CHANCE":   0.68,
	"BOT_STRUGGLE_ACCURACY": 0.6,
	"INPUT_RATE":            30.0,
	"INPUT_BURST":           20,
}

// Load reads .env (if any) and the process environment.
func Load() (*ConfigStruct, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn("Warning: .env file not found or could not be loaded")
	}
	return FromViper(viper.New())
}

// FromViper fills a ConfigStruct from v, applying defaults for every key.
func FromViper(v *viper.Viper) (*ConfigStruct, error) {
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "bind env %s", key)
		}
	}
	v.AutomaticEnv()

	cfg := &ConfigStruct{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "decode config")
	}

	cfg.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	cfg.RelayKinds = splitList(v.GetString("RELAY_GAME_KINDS"))

	if err := cfg.Game.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g GameConfig) validate() error {
	positive := map[string]time.Duration{
		"TICK_INTERVAL": g.TickInterval,
		"REEL_DURATION": g.ReelDuration,
	}
	for key, d := range positive {
		if d <= 0 {
			return eris.Errorf("%s must be positive, got %v", key, d)
		}
	}

	waits := map[string]time.Duration{
		"RANKED_GRACE":     g.RankedGrace,
		"EARLY_PAIR_DELAY": g.EarlyPairDelay,
	}
	for key, d := range waits {
		if d < 0 {
			return eris.Errorf("%s must not be negative, got %v", key, d)
		}
	}

	amounts := map[string]float64{
		"PROGRESS_GAIN":  g.ProgressGain,
		"PROGRESS_DECAY": g.ProgressDecay,
		"TAP_REWARD":     g.TapReward,
		"TAP_PENALTY":    g.TapPenalty,
		"INPUT_RATE":     g.InputRate,
	}
	for key, v := range amounts {
		if v < 0 {
			return eris.Errorf("%s must not be negative, got %v", key, v)
		}
	}
	if g.InputBurst < 0 {
		return eris.Errorf("INPUT_BURST must not be negative, got %d", g.InputBurst)
	}

	chances := map[string]float64{
		"BOT_REEL_HIT_CHANCE":   g.BotReelHitChance,
		"BOT_STRUGGLE_ACCURACY": g.BotStruggleAccuracy,
	}
	for key, p := range chances {
		if p < 0 || p > 1 {
			return eris.Errorf("%s must be within [0,1], got %v", key, p)
		}
	}
	return nil
}

func (c *ConfigStruct) MySQLEnabled() bool { return c.MySQLHost != "" && c.MySQLDatabase != "" }

func (c *ConfigStruct) MongoEnabled() bool { return c.MongoURI != "" }

func (c *ConfigStruct) RedisEnabled() bool { return c.RedisAddr != "" }

func (c *ConfigStruct) NatsEnabled() bool { return c.NatsURL != "" }

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
