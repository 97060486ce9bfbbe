package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the rendezvous server configuration.
type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	// RoomGrace is how long a room survives its creator's dropped connection.
	RoomGrace    time.Duration `mapstructure:"room_grace"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval"`

	STUNEnabled bool `mapstructure:"stun_enabled"`
	STUNPort    int  `mapstructure:"stun_port"`
}

// PeerConfig drives the headless peer.
type PeerConfig struct {
	Server     string        `mapstructure:"server"`
	Room       string        `mapstructure:"room"`
	Create     bool          `mapstructure:"create"`
	Codec      string        `mapstructure:"codec"`
	Width      int           `mapstructure:"width"`
	Height     int           `mapstructure:"height"`
	FPS        int           `mapstructure:"fps"`
	Debounce   time.Duration `mapstructure:"debounce"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	ICEServers []string      `mapstructure:"ice_servers"`
	Debug      bool          `mapstructure:"debug"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("O2O")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper, name string) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", name, env)
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}
}

func Load() (*Config, error) {
	v := newViper()
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 512*1024)
	v.SetDefault("ping_period", "10s")
	v.SetDefault("pong_wait", "30s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("room_grace", "15s")
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_interval", "1m")
	v.SetDefault("stun_enabled", true)
	v.SetDefault("stun_port", 3478)
	readFile(v, "config")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("ping_period %s must be shorter than pong_wait %s", cfg.PingPeriod, cfg.PongWait)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}

// PeerFlags declares the peer command line. Flags override file and environment values.
func PeerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("peer", pflag.ContinueOnError)
	fs.String("server", "http://localhost:8080", "rendezvous server origin")
	fs.String("room", "", "room id; a fresh one is generated when creating")
	fs.Bool("create", false, "create the room (initiator)")
	fs.String("codec", "H264", "preferred video codec")
	fs.Int("width", 1920, "capture width")
	fs.Int("height", 1080, "capture height")
	fs.Int("fps", 30, "capture frame rate")
	fs.Duration("debounce", 800*time.Millisecond, "renegotiation debounce window")
	fs.Duration("retry-delay", time.Second, "retry delay while the channel is down")
	fs.StringSlice("ice-servers", []string{"stun:stun.l.google.com:19302"}, "ICE server urls")
	fs.Bool("debug", false, "debug logging")
	return fs
}

func LoadPeer(args []string) (*PeerConfig, error) {
	fs := PeerFlags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	v := newViper()
	readFile(v, "peer")
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		_ = v.BindPFlag(key, f)
	})

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	return &cfg, nil
}
