// Package config loads run settings through viper: config file, DAGSIM_
// environment variables and command-line flags, in rising precedence.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dag-consensus-sim/batch"
	"dag-consensus-sim/protocol"
	"dag-consensus-sim/simulation"
	"dag-consensus-sim/topology"
)

// ErrInvalidSettings marks every validation failure Load reports.
var ErrInvalidSettings = errors.New("invalid settings")

const envPrefix = "DAGSIM"

type Config struct {
	Batch   batch.Options
	Log     LogConfig
	LevelDB LevelDBConfig
	Server  ServerConfig
}

type LogConfig struct {
	File  string
	Level string
}

type LevelDBConfig struct {
	// Path is the store directory; empty keeps runs in memory.
	Path string
}

type ServerConfig struct {
	Enabled bool
	Port    int
}

type rawDistribution struct {
	Type   string  `mapstructure:"type"`
	Value  float64 `mapstructure:"value"`
	Low    float64 `mapstructure:"low"`
	High   float64 `mapstructure:"high"`
	Mean   float64 `mapstructure:"mean"`
	StdDev float64 `mapstructure:"std_dev"`
}

type rawConfig struct {
	Protocol struct {
		Type                         string  `mapstructure:"type"`
		AcceptDepth                  int     `mapstructure:"accept_depth"`
		TargetTicksBetweenGeneration float64 `mapstructure:"target_ticks_between_generation"`
		RecheckWindow                int     `mapstructure:"recheck_window"`
	} `mapstructure:"protocol"`
	Topology struct {
		Type   string          `mapstructure:"type"`
		Miners int             `mapstructure:"miners"`
		Radius float64         `mapstructure:"radius"`
		P1     float64         `mapstructure:"p1"`
		P2     float64         `mapstructure:"p2"`
		Edges  [][]int         `mapstructure:"edges"`
		Delay  rawDistribution `mapstructure:"delay"`
		Power  rawDistribution `mapstructure:"power"`
	} `mapstructure:"topology"`
	Termination struct {
		Condition     string `mapstructure:"condition"`
		Value         int    `mapstructure:"value"`
		Cooldown      bool   `mapstructure:"cooldown"`
		CooldownTicks int    `mapstructure:"cooldown_ticks"`
		MaxTicks      int    `mapstructure:"max_ticks"`
	} `mapstructure:"termination"`
	Seed              int64  `mapstructure:"seed"`
	Executions        int    `mapstructure:"executions"`
	Workers           int    `mapstructure:"workers"`
	TopologySelection string `mapstructure:"topology_selection"`
	Log               struct {
		AppLogFile string `mapstructure:"app_log_file"`
		Level      string `mapstructure:"level"`
	} `mapstructure:"log"`
	LevelDB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"leveldb"`
	Server struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"server"`
}

// NewViper returns a viper instance with every default registered and
// DAGSIM_ environment overrides enabled, e.g. DAGSIM_TERMINATION_VALUE.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("protocol.type", "CHAIN")
	v.SetDefault("protocol.accept_depth", 6)
	v.SetDefault("protocol.target_ticks_between_generation", 10)
	v.SetDefault("protocol.recheck_window", 1)

	v.SetDefault("topology.type", "COMPLETE")
	v.SetDefault("topology.miners", 10)
	v.SetDefault("topology.radius", 0.3)
	v.SetDefault("topology.p1", 0.5)
	v.SetDefault("topology.p2", 0.5)
	v.SetDefault("topology.delay.type", "CONSTANT")
	v.SetDefault("topology.delay.value", 1)
	v.SetDefault("topology.power.type", "CONSTANT")
	v.SetDefault("topology.power.value", 1)

	v.SetDefault("termination.condition", "TRANSACTIONS")
	v.SetDefault("termination.value", 100)
	v.SetDefault("termination.cooldown", true)
	v.SetDefault("termination.cooldown_ticks", 1000)
	v.SetDefault("termination.max_ticks", simulation.DefaultMaxTicks)

	v.SetDefault("seed", 1)
	v.SetDefault("executions", 1)
	v.SetDefault("workers", 4)
	v.SetDefault("topology_selection", "GENERATE_ONCE")

	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags defines the command-line overrides on fs.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("config", "config/config.yaml", "path to the config file")
	fs.Int("executions", 0, "number of independent runs")
	fs.Int("workers", 0, "number of runs executed concurrently")
	fs.Int64("seed", 0, "seed of the first run; run i uses seed+i")
	fs.Bool("serve", false, "serve the stored runs over HTTP once the batch is done")
}

// BindFlags makes flags set on the command line override the config file.
func BindFlags(v *viper.Viper, fs *flag.FlagSet) error {
	for key, name := range map[string]string{
		"executions":     "executions",
		"workers":        "workers",
		"seed":           "seed",
		"server.enabled": "serve",
	} {
		f := fs.Lookup(name)
		if f == nil {
			return errors.Newf("flag --%s is not registered", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind --%s", name)
		}
	}
	return nil
}

// FilePath returns the --config path and whether it was set explicitly, in
// which case the file must exist.
func FilePath(fs *flag.FlagSet) (string, bool, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return "", false, errors.Wrap(err, "read --config")
	}
	return path, fs.Changed("config"), nil
}

// ReadFile merges the config file at path into v. A missing file is only an
// error when required.
func ReadFile(v *viper.Viper, path string, required bool) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

func invalid(key string, err error) error {
	return errors.Mark(errors.Wrapf(err, "%s", key), ErrInvalidSettings)
}

// Load decodes and validates everything v holds.
func Load(v *viper.Viper) (*Config, error) {
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, invalid("decode", err)
	}

	proto, err := protocol.ParseType(raw.Protocol.Type)
	if err != nil {
		return nil, invalid("protocol.type", err)
	}
	cond, err := simulation.ParseCondition(raw.Termination.Condition)
	if err != nil {
		return nil, invalid("termination.condition", err)
	}
	topo, err := topology.ParseType(raw.Topology.Type)
	if err != nil {
		return nil, invalid("topology.type", err)
	}
	delay, err := distribution(raw.Topology.Delay)
	if err != nil {
		return nil, invalid("topology.delay", err)
	}
	power, err := distribution(raw.Topology.Power)
	if err != nil {
		return nil, invalid("topology.power", err)
	}
	sel, err := batch.ParseSelection(raw.TopologySelection)
	if err != nil {
		return nil, invalid("topology_selection", err)
	}

	edges := make([][2]int, 0, len(raw.Topology.Edges))
	for _, e := range raw.Topology.Edges {
		if len(e) != 2 {
			return nil, invalid("topology.edges", errors.Newf("edge %v must name two miners", e))
		}
		edges = append(edges, [2]int{e[0], e[1]})
	}

	cfg := &Config{
		Batch: batch.Options{
			Settings: simulation.Settings{
				Protocol:                     proto,
				AcceptDepth:                  raw.Protocol.AcceptDepth,
				TargetTicksBetweenGeneration: raw.Protocol.TargetTicksBetweenGeneration,
				RecheckWindow:                raw.Protocol.RecheckWindow,
				Termination: simulation.Termination{
					Condition:     cond,
					Value:         raw.Termination.Value,
					Cooldown:      raw.Termination.Cooldown,
					CooldownTicks: raw.Termination.CooldownTicks,
					MaxTicks:      raw.Termination.MaxTicks,
				},
				Seed: raw.Seed,
			},
			Topology: topology.Spec{
				Type:   topo,
				Miners: raw.Topology.Miners,
				Radius: raw.Topology.Radius,
				P1:     raw.Topology.P1,
				P2:     raw.Topology.P2,
				Edges:  edges,
				Delay:  delay,
			},
			Power:      power,
			Executions: raw.Executions,
			Workers:    raw.Workers,
			Selection:  sel,
		},
		Log:     LogConfig{File: raw.Log.AppLogFile, Level: raw.Log.Level},
		LevelDB: LevelDBConfig{Path: raw.LevelDB.Path},
		Server:  ServerConfig{Enabled: raw.Server.Enabled, Port: raw.Server.Port},
	}

	if cfg.Batch.Topology.Miners < 1 {
		return nil, invalid("topology.miners", errors.Newf("%d miners", cfg.Batch.Topology.Miners))
	}
	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return nil, invalid("server.port", errors.Newf("port %d out of range", cfg.Server.Port))
	}
	if err := cfg.Batch.Validate(); err != nil {
		return nil, invalid("settings", err)
	}
	return cfg, nil
}

func distribution(raw rawDistribution) (topology.Distribution, error) {
	typ, err := topology.ParseDistributionType(raw.Type)
	if err != nil {
		return topology.Distribution{}, err
	}
	d := topology.Distribution{
		Type:   typ,
		Value:  raw.Value,
		Low:    raw.Low,
		High:   raw.High,
		Mean:   raw.Mean,
		StdDev: raw.StdDev,
	}
	return d, d.Validate()
}
