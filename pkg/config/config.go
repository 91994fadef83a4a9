package config

import (
	"time"

	"github.com/spf13/pflag"
)

type SignalerConfig struct {
	Signaler    Signaler
	Rooms       Rooms
	Connections Connections
	Queue       Queue
}

type Signaler struct {
	Debug      bool
	Server     Server
	Monitoring Monitoring
	Origin     string `fig:"origin"`
	RateLimit  RateLimit
}

type Server struct {
	Address   string `fig:"address" default:":8000"`
	Https     bool
	HttpsCert string
	HttpsKey  string
	Domain    string
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"url_prefix" default:"/signaler"`
	MetricEnabled    bool   `fig:"metric_enabled"`
	ProfilingEnabled bool   `fig:"profiling_enabled"`
}

func (m Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

type RateLimit struct {
	Rps   float64 `fig:"rps" default:"60"`
	Burst int     `fig:"burst" default:"120"`
}

type Rooms struct {
	DefaultCapacity    int           `fig:"default_capacity" default:"8"`
	MaxCapacity        int           `fig:"max_capacity" default:"64"`
	ObjectCap          int           `fig:"object_cap" default:"128"`
	NameMaxLen         int           `fig:"name_max_len" default:"64"`
	SweepInterval      time.Duration `fig:"sweep_interval" default:"30s"`
	EmptyTTL           time.Duration `fig:"empty_ttl" default:"5m"`
	PersistentEmptyTTL time.Duration `fig:"persistent_empty_ttl" default:"72h"`
	RecencyWindow      time.Duration `fig:"recency_window" default:"240h"`
	TemplatesFile      string        `fig:"templates_file"`
	WatchTemplates     bool          `fig:"watch_templates"`
}

type Connections struct {
	MaxPerParticipant   int           `fig:"max_per_participant" default:"16"`
	FailedCleanup       time.Duration `fig:"failed_cleanup" default:"5s"`
	DisconnectedCleanup time.Duration `fig:"disconnected_cleanup" default:"30s"`
	ClosedCleanup       time.Duration `fig:"closed_cleanup" default:"1s"`
	ConnectingCeiling   time.Duration `fig:"connecting_ceiling" default:"30s"`
	StaleAge            time.Duration `fig:"stale_age" default:"10m"`
	SweepInterval       time.Duration `fig:"sweep_interval" default:"15s"`
}

type Queue struct {
	MaxLen        int           `fig:"max_len" default:"64"`
	MaxAge        time.Duration `fig:"max_age" default:"2m"`
	PurgeInterval time.Duration `fig:"purge_interval" default:"30s"`
}

// allows custom config path
var configPath string

func NewSignalerConfig() (conf SignalerConfig) {
	if err := LoadConfig(&conf, configPath); err != nil {
		panic(err)
	}
	return
}

// ParseFlags updates config values from passed runtime flags.
func (c *SignalerConfig) ParseFlags() {
	c.AddFlags(pflag.CommandLine)
	pflag.Parse()
}

func (c *SignalerConfig) AddFlags(fs *pflag.FlagSet) *SignalerConfig {
	fs.StringVar(&c.Signaler.Server.Address, "address", c.Signaler.Server.Address, "server address")
	fs.IntVar(&c.Signaler.Monitoring.Port, "monitoring.port", c.Signaler.Monitoring.Port, "monitoring server port")
	fs.BoolVar(&c.Signaler.Debug, "debug", c.Signaler.Debug, "debug logging")
	fs.StringVar(&configPath, "conf", configPath, "custom configuration directory path")
	return c
}
