package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/clock"
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/profile"
)

// FileConfig mirrors the config file layout. Durations are Go duration strings.
type FileConfig struct {
	Root      string          `json:"root" yaml:"root"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Bus       BusConfig       `json:"bus" yaml:"bus"`
	Master    MasterConfig    `json:"master" yaml:"master"`
	Profile   ProfileConfig   `json:"profile" yaml:"profile"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Profiling ProfilingConfig `json:"profiling" yaml:"profiling"`
}

type JournalConfig struct {
	PageSize      int    `json:"pageSize" yaml:"pageSize"`
	ProbeInterval string `json:"probeInterval" yaml:"probeInterval"`
}

type BusConfig struct {
	LowLatency bool   `json:"lowLatency" yaml:"lowLatency"`
	IdleSleep  string `json:"idleSleep" yaml:"idleSleep"`
}

type MasterConfig struct {
	RolloverHour  *int   `json:"rolloverHour" yaml:"rolloverHour"`
	CheckInterval string `json:"checkInterval" yaml:"checkInterval"`
	Socket        string `json:"socket" yaml:"socket"`
}

type ProfileConfig struct {
	Backend  string         `json:"backend" yaml:"backend"`
	DataDir  string         `json:"dataDir" yaml:"dataDir"`
	Sync     bool           `json:"sync" yaml:"sync"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

type PostgresConfig struct {
	Host       string            `json:"host" yaml:"host"`
	Port       int               `json:"port" yaml:"port"`
	User       string            `json:"user" yaml:"user"`
	Password   string            `json:"password" yaml:"password"`
	Database   string            `json:"database" yaml:"database"`
	SSLMode    string            `json:"sslMode" yaml:"sslMode"`
	Params     map[string]string `json:"params" yaml:"params"`
	ConnString string            `json:"connString" yaml:"connString"`
}

type SessionConfig struct {
	Path string `json:"path" yaml:"path"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type ProfilingConfig struct {
	Server  string `json:"server" yaml:"server"`
	AppName string `json:"appName" yaml:"appName"`
}

// ResolvedMaster is the resolved master configuration.
type ResolvedMaster struct {
	Calendar      clock.Calendar
	CheckInterval time.Duration
	SocketPath    string
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Root        string
	Journal     journal.Options
	Bus         bus.Config
	Master      ResolvedMaster
	Profile     profile.Config
	SessionPath string
	MetricsAddr string
	Pyroscope   ProfilingConfig
}

const defaultCheckInterval = time.Second

// Default resolves an empty file config rooted at root.
func Default(root string) (Loaded, error) {
	return resolve(FileConfig{Root: root})
}

// Load reads a JSON or YAML config file, chosen by extension, and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = sonic.ConfigStd.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Loaded{}, errors.Wrap(err, "decode config").With("path", path)
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Root == "" {
		return Loaded{}, errors.New("config root is empty")
	}
	root := cfg.Root

	opts := journal.DefaultOptions()
	if cfg.Journal.PageSize > 0 {
		opts.PageSize = cfg.Journal.PageSize
	}
	if err := parseDuration(cfg.Journal.ProbeInterval, &opts.ProbeInterval); err != nil {
		return Loaded{}, errors.Wrap(err, "journal.probeInterval")
	}
	if err := opts.Validate(); err != nil {
		return Loaded{}, err
	}

	busCfg := bus.Config{Mode: bus.ModeNormal}
	if cfg.Bus.LowLatency {
		busCfg.Mode = bus.ModeLowLatency
	}
	if err := parseDuration(cfg.Bus.IdleSleep, &busCfg.IdleSleep); err != nil {
		return Loaded{}, errors.Wrap(err, "bus.idleSleep")
	}

	master := ResolvedMaster{
		Calendar:      clock.DefaultCalendar(),
		CheckInterval: defaultCheckInterval,
		SocketPath:    cfg.Master.Socket,
	}
	if cfg.Master.RolloverHour != nil {
		if h := *cfg.Master.RolloverHour; h < 0 || h > 23 {
			return Loaded{}, errors.Errorf("master.rolloverHour must be in [0, 23], got %d", h)
		}
		master.Calendar.RolloverHour = *cfg.Master.RolloverHour
	}
	if err := parseDuration(cfg.Master.CheckInterval, &master.CheckInterval); err != nil {
		return Loaded{}, errors.Wrap(err, "master.checkInterval")
	}
	if master.CheckInterval <= 0 {
		return Loaded{}, errors.New("master.checkInterval must be > 0")
	}
	if master.SocketPath == "" {
		master.SocketPath = filepath.Join(root, "master.sock")
	}

	prof := profile.Config{
		Backend: profile.Backend(cfg.Profile.Backend),
		DataDir: cfg.Profile.DataDir,
		Sync:    cfg.Profile.Sync,
		Postgres: profile.PostgresOption{
			Host:       cfg.Profile.Postgres.Host,
			Port:       cfg.Profile.Postgres.Port,
			User:       cfg.Profile.Postgres.User,
			Password:   cfg.Profile.Postgres.Password,
			Database:   cfg.Profile.Postgres.Database,
			SSLMode:    cfg.Profile.Postgres.SSLMode,
			Params:     cfg.Profile.Postgres.Params,
			ConnString: cfg.Profile.Postgres.ConnString,
		},
	}
	switch prof.Backend {
	case "":
		prof.Backend = profile.BackendPebble
	case profile.BackendPebble, profile.BackendPostgres:
	default:
		return Loaded{}, errors.Errorf("profile.backend %q is unknown", prof.Backend)
	}
	if prof.DataDir == "" {
		prof.DataDir = filepath.Join(root, "profile")
	}

	sessionPath := cfg.Session.Path
	if sessionPath == "" {
		sessionPath = filepath.Join(root, "session.db")
	}

	pyroscope := cfg.Profiling
	if pyroscope.AppName == "" {
		pyroscope.AppName = "kungfu.master"
	}

	return Loaded{
		Root:        root,
		Journal:     opts,
		Bus:         busCfg,
		Master:      master,
		Profile:     prof,
		SessionPath: sessionPath,
		MetricsAddr: cfg.Metrics.Addr,
		Pyroscope:   pyroscope,
	}, nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return errors.Errorf("duration %q is negative", s)
	}
	*dst = d
	return nil
}
