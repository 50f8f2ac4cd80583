package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	// EnvPrefix is a prefix of environment variables overriding the config file,
	// ALGOHUB_NMAP_MIN_RATE overrides nmap.min_rate.
	EnvPrefix = "ALGOHUB"
)

type Config struct {
	OutputDir   string      `mapstructure:"output_dir" yaml:"output_dir"`
	StateFile   string      `mapstructure:"state_file" yaml:"state_file"`
	Concurrency Concurrency `mapstructure:"concurrency" yaml:"concurrency"`
	Nmap        Nmap        `mapstructure:"nmap" yaml:"nmap"`
	Tools       Tools       `mapstructure:"tools" yaml:"tools"`
	Gowitness   Gowitness   `mapstructure:"gowitness" yaml:"gowitness"`
	DNS         DNS         `mapstructure:"dns" yaml:"dns"`
	Web         Web         `mapstructure:"web" yaml:"web"`
	Service     Service     `mapstructure:"service" yaml:"service"`
}

// Concurrency caps the outer pools (one worker per target)
// and the inner per domain controller pool.
type Concurrency struct {
	BlackBox  int `mapstructure:"blackbox" yaml:"blackbox"`
	GrayBox   int `mapstructure:"graybox" yaml:"graybox"`
	ManSpider int `mapstructure:"manspider" yaml:"manspider"`
	SubScans  int `mapstructure:"subscans" yaml:"subscans"`
	// ACL is the number of objects whose DACL is read at once
	ACL int `mapstructure:"acl" yaml:"acl"`
}

type Nmap struct {
	Binary  string        `mapstructure:"binary" yaml:"binary"` // empty => nmap from $PATH
	Ports   string        `mapstructure:"ports" yaml:"ports"`
	MinRate int           `mapstructure:"min_rate" yaml:"min_rate"`
	Timing  string        `mapstructure:"timing" yaml:"timing"` // T0..T5
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Tools are paths or names of the external binaries.
type Tools struct {
	Nxc              string        `mapstructure:"nxc" yaml:"nxc"`
	Gowitness        string        `mapstructure:"gowitness" yaml:"gowitness"`
	Ldeep            string        `mapstructure:"ldeep" yaml:"ldeep"`
	Certipy          string        `mapstructure:"certipy" yaml:"certipy"`
	Bloodhound       string        `mapstructure:"bloodhound" yaml:"bloodhound"`
	ManspiderPython  string        `mapstructure:"manspider_python" yaml:"manspider_python"`
	ManspiderScript  string        `mapstructure:"manspider_script" yaml:"manspider_script"`
	Ldapsearch       string        `mapstructure:"ldapsearch" yaml:"ldapsearch"`
	Dacledit         string        `mapstructure:"dacledit" yaml:"dacledit"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ManspiderTimeout time.Duration `mapstructure:"manspider_timeout" yaml:"manspider_timeout"`
	// DaclTimeout bounds a single dacledit read
	DaclTimeout time.Duration `mapstructure:"dacl_timeout" yaml:"dacl_timeout"`
}

type Gowitness struct {
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
	DBFile         string `mapstructure:"db_file" yaml:"db_file"`
	Threads        int    `mapstructure:"threads" yaml:"threads"`
}

// DNS configures the resolution of domain controller host names.
// Empty Nameserver means the system resolver.
type DNS struct {
	Nameserver string        `mapstructure:"nameserver" yaml:"nameserver"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type Web struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

type Service struct {
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
	Log     string `mapstructure:"log" yaml:"log"` // "stderr"|"stdout"|"discard"|path
}

func DefaultConfig() Config {
	return Config{
		OutputDir: "scan",
		StateFile: "state.json",
		Concurrency: Concurrency{
			BlackBox:  5,
			GrayBox:   3,
			ManSpider: 5,
			SubScans:  3,
			ACL:       10,
		},
		Nmap: Nmap{
			Ports:   "80,443,8080,8443,3000,5000,88,445,139,53,135,5985,5986,3389,1433",
			MinRate: 1000,
			Timing:  "T5",
		},
		Tools: Tools{
			Nxc:             "nxc",
			Gowitness:       "gowitness",
			Ldeep:           "ldeep",
			Certipy:         "certipy",
			Bloodhound:      "bloodhound-ce.py",
			ManspiderPython: "/opt/tools/MANSPIDER/venv/bin/python3",
			ManspiderScript: "/opt/tools/MANSPIDER/man_spider/manspider.py",
			Ldapsearch:      "ldapsearch",
			Dacledit:        "dacledit.py",
			DaclTimeout:     30 * time.Second,
		},
		Gowitness: Gowitness{
			ScreenshotsDir: "scan/screenshots_global",
			DBFile:         "gowitness.sqlite3",
			Threads:        10,
		},
		DNS: DNS{
			Timeout: 5 * time.Second,
		},
		Web: Web{
			Listen: ":5000",
		},
		Service: Service{
			Log: LogStderr,
		},
	}
}

// Validate reports all the problems of a configuration at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.OutputDir != "", "output_dir is empty")
	check(c.StateFile != "", "state_file is empty")
	check(c.Concurrency.BlackBox > 0, "concurrency.blackbox must be positive, got %d", c.Concurrency.BlackBox)
	check(c.Concurrency.GrayBox > 0, "concurrency.graybox must be positive, got %d", c.Concurrency.GrayBox)
	check(c.Concurrency.ManSpider > 0, "concurrency.manspider must be positive, got %d", c.Concurrency.ManSpider)
	check(c.Concurrency.SubScans > 0, "concurrency.subscans must be positive, got %d", c.Concurrency.SubScans)
	check(c.Concurrency.ACL > 0, "concurrency.acl must be positive, got %d", c.Concurrency.ACL)
	check(c.Nmap.Ports != "", "nmap.ports is empty")
	check(c.Nmap.MinRate >= 0, "nmap.min_rate must not be negative, got %d", c.Nmap.MinRate)
	_, err := c.Nmap.TimingLevel()
	check(err == nil, "nmap.timing %q: expected T0..T5", c.Nmap.Timing)
	check(c.Gowitness.Threads > 0, "gowitness.threads must be positive, got %d", c.Gowitness.Threads)
	check(c.Tools.Timeout >= 0, "tools.timeout must not be negative")
	check(c.Tools.DaclTimeout >= 0, "tools.dacl_timeout must not be negative")
	check(c.Web.Listen != "", "web.listen is empty")

	return errors.Join(errs...)
}

// TimingLevel returns the numeric level of a nmap timing template T0..T5
func (n Nmap) TimingLevel() (int, error) {
	t := strings.TrimPrefix(strings.ToUpper(n.Timing), "T")
	if len(t) != 1 || t[0] < '0' || t[0] > '5' {
		return 0, fmt.Errorf("%w: unknown timing template %q", ErrInvalidConfig, n.Timing)
	}
	return int(t[0] - '0'), nil
}

// LoadConfig reads YAML from r on top of DefaultConfig. Keys are
// overridable by ALGOHUB_ prefixed environment variables. A nil reader
// returns the defaults with the environment applied.
func LoadConfig(r io.Reader) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("encoding default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("reading default config: %w", err)
	}
	if r != nil {
		if err := v.MergeConfig(r); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfig stores cfg as YAML.
func WriteConfig(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}
