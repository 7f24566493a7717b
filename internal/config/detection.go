package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/dalf/botdetection/internal/core/domain"
)

// Duration aceita strings no formato de time.ParseDuration ("20s", "1h").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type RealIPFile struct {
	XFor       int `toml:"x_for" yaml:"x_for"`
	IPv4Prefix int `toml:"ipv4_prefix" yaml:"ipv4_prefix"`
	IPv6Prefix int `toml:"ipv6_prefix" yaml:"ipv6_prefix"`
}

type IPLimitFile struct {
	FilterLinkLocal     bool     `toml:"filter_link_local" yaml:"filter_link_local"`
	LinkLocalSkipsLists bool     `toml:"link_local_skips_lists" yaml:"link_local_skips_lists"`
	LinkToken           bool     `toml:"link_token" yaml:"link_token"`
	BurstWindow         Duration `toml:"burst_window" yaml:"burst_window"`
	BurstMax            int      `toml:"burst_max" yaml:"burst_max"`
	BurstMaxSuspicious  int      `toml:"burst_max_suspicious" yaml:"burst_max_suspicious"`
	LongWindow          Duration `toml:"long_window" yaml:"long_window"`
	LongMax             int      `toml:"long_max" yaml:"long_max"`
	LongMaxSuspicious   int      `toml:"long_max_suspicious" yaml:"long_max_suspicious"`
	SuspiciousWindow    Duration `toml:"suspicious_window" yaml:"suspicious_window"`
	SuspiciousMax       int      `toml:"suspicious_max" yaml:"suspicious_max"`
}

type LinkTokenFile struct {
	TokenTTL Duration `toml:"token_ttl" yaml:"token_ttl"`
	PingTTL  Duration `toml:"ping_ttl" yaml:"ping_ttl"`
	Length   int      `toml:"length" yaml:"length"`
}

type HTTPAcceptFile struct {
	MIMETypes []string `toml:"mime_types" yaml:"mime_types"`
}

type RateLimitFile struct {
	Requests      int      `toml:"requests" yaml:"requests"`
	Window        Duration `toml:"window" yaml:"window"`
	BlockDuration Duration `toml:"block_duration" yaml:"block_duration"`
}

type ListEntryFile struct {
	Network string `toml:"network" yaml:"network"`
	Label   string `toml:"label" yaml:"label"`
}

// DetectionFile é o formato do arquivo de detecção (TOML ou YAML).
type DetectionFile struct {
	FailOpen   bool                     `toml:"fail_open" yaml:"fail_open"`
	RealIP     RealIPFile               `toml:"real_ip" yaml:"real_ip"`
	IPLimit    IPLimitFile              `toml:"ip_limit" yaml:"ip_limit"`
	LinkToken  LinkTokenFile            `toml:"link_token" yaml:"link_token"`
	HTTPAccept HTTPAcceptFile           `toml:"http_accept" yaml:"http_accept"`
	RateLimits map[string]RateLimitFile `toml:"rate_limits" yaml:"rate_limits"`
	PassList   []ListEntryFile          `toml:"pass_list" yaml:"pass_list"`
	BlockList  []ListEntryFile          `toml:"block_list" yaml:"block_list"`
	Routes     map[string][]string      `toml:"routes" yaml:"routes"`
}

// newDetectionFile pre-fills every field so keys missing from the file keep
// their default.
func newDetectionFile(def domain.DetectionConfig) DetectionFile {
	return DetectionFile{
		FailOpen: def.FailOpen,
		RealIP: RealIPFile{
			XFor:       def.RealIP.XFor,
			IPv4Prefix: def.RealIP.IPv4Prefix,
			IPv6Prefix: def.RealIP.IPv6Prefix,
		},
		IPLimit: IPLimitFile{
			FilterLinkLocal:     def.IPLimit.FilterLinkLocal,
			LinkLocalSkipsLists: def.IPLimit.LinkLocalSkipsLists,
			LinkToken:           def.IPLimit.LinkToken,
			BurstWindow:         Duration(def.IPLimit.Burst.Window),
			BurstMax:            def.IPLimit.Burst.Requests,
			BurstMaxSuspicious:  def.IPLimit.BurstMaxSuspicious,
			LongWindow:          Duration(def.IPLimit.Long.Window),
			LongMax:             def.IPLimit.Long.Requests,
			LongMaxSuspicious:   def.IPLimit.LongMaxSuspicious,
			SuspiciousWindow:    Duration(def.IPLimit.Suspicious.Window),
			SuspiciousMax:       def.IPLimit.Suspicious.Requests,
		},
		LinkToken: LinkTokenFile{
			TokenTTL: Duration(def.LinkToken.TokenTTL),
			PingTTL:  Duration(def.LinkToken.PingTTL),
			Length:   def.LinkToken.Length,
		},
		HTTPAccept: HTTPAcceptFile{MIMETypes: def.HTTPAcceptMIMETypes},
	}
}

// LoadDetection reads the detection file at path. An empty path yields the
// defaults. On any failure it returns the defaults together with an error
// wrapping domain.ErrConfigLoad, so the caller can log and keep serving.
func LoadDetection(path string) (domain.DetectionConfig, error) {
	def := domain.DefaultDetectionConfig()
	if strings.TrimSpace(path) == "" {
		return def, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}

	file := newDetectionFile(def)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(raw, &file)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &file)
	default:
		err = fmt.Errorf("unsupported config extension %q", ext)
	}
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", domain.ErrConfigLoad, path, err)
	}

	cfg, err := file.ToDomain()
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", domain.ErrConfigLoad, path, err)
	}
	return cfg, nil
}

// ToDomain converts and validates the file contents.
func (f DetectionFile) ToDomain() (domain.DetectionConfig, error) {
	cfg := domain.DetectionConfig{
		RealIP: domain.RealIPConfig{
			XFor:       f.RealIP.XFor,
			IPv4Prefix: f.RealIP.IPv4Prefix,
			IPv6Prefix: f.RealIP.IPv6Prefix,
		},
		IPLimit: domain.IPLimitConfig{
			FilterLinkLocal:     f.IPLimit.FilterLinkLocal,
			LinkLocalSkipsLists: f.IPLimit.LinkLocalSkipsLists,
			LinkToken:           f.IPLimit.LinkToken,
			Burst:               domain.RateLimitRule{Requests: f.IPLimit.BurstMax, Window: time.Duration(f.IPLimit.BurstWindow)},
			BurstMaxSuspicious:  f.IPLimit.BurstMaxSuspicious,
			Long:                domain.RateLimitRule{Requests: f.IPLimit.LongMax, Window: time.Duration(f.IPLimit.LongWindow)},
			LongMaxSuspicious:   f.IPLimit.LongMaxSuspicious,
			Suspicious:          domain.RateLimitRule{Requests: f.IPLimit.SuspiciousMax, Window: time.Duration(f.IPLimit.SuspiciousWindow)},
		},
		LinkToken: domain.LinkTokenConfig{
			TokenTTL: time.Duration(f.LinkToken.TokenTTL),
			PingTTL:  time.Duration(f.LinkToken.PingTTL),
			Length:   f.LinkToken.Length,
		},
		HTTPAcceptMIMETypes: f.HTTPAccept.MIMETypes,
		RateLimits:          make(map[string]domain.RateLimitRule, len(f.RateLimits)),
		Routes:              make(map[string][]string, len(f.Routes)),
		FailOpen:            f.FailOpen,
	}

	for method, rule := range f.RateLimits {
		cfg.RateLimits[method] = domain.RateLimitRule{
			Requests:      rule.Requests,
			Window:        time.Duration(rule.Window),
			BlockDuration: time.Duration(rule.BlockDuration),
		}
	}
	for route, names := range f.Routes {
		cfg.Routes[route] = append([]string{}, names...)
	}

	var err error
	if cfg.PassList, err = parseList("pass_list", f.PassList); err != nil {
		return domain.DetectionConfig{}, err
	}
	if cfg.BlockList, err = parseList("block_list", f.BlockList); err != nil {
		return domain.DetectionConfig{}, err
	}

	if err := Validate(cfg); err != nil {
		return domain.DetectionConfig{}, err
	}
	return cfg, nil
}

func parseList(name string, entries []ListEntryFile) ([]domain.ListEntry, error) {
	out := make([]domain.ListEntry, 0, len(entries))
	for i, e := range entries {
		entry, err := domain.ParseListEntry(e.Network, e.Label)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Validate rejects values no component can work with.
func Validate(cfg domain.DetectionConfig) error {
	if cfg.RealIP.XFor < 1 {
		return fmt.Errorf("real_ip.x_for must be at least 1")
	}
	if cfg.RealIP.IPv4Prefix < 0 || cfg.RealIP.IPv4Prefix > 32 {
		return fmt.Errorf("real_ip.ipv4_prefix must be within 0..32, got %d", cfg.RealIP.IPv4Prefix)
	}
	if cfg.RealIP.IPv6Prefix < 0 || cfg.RealIP.IPv6Prefix > 128 {
		return fmt.Errorf("real_ip.ipv6_prefix must be within 0..128, got %d", cfg.RealIP.IPv6Prefix)
	}

	ipLimit := map[string]domain.RateLimitRule{
		"ip_limit.burst":      cfg.IPLimit.Burst,
		"ip_limit.long":       cfg.IPLimit.Long,
		"ip_limit.suspicious": cfg.IPLimit.Suspicious,
	}
	for name, rule := range ipLimit {
		if !rule.Valid() {
			return fmt.Errorf("%s needs a positive window and maximum", name)
		}
	}
	if cfg.IPLimit.BurstMaxSuspicious < 0 || cfg.IPLimit.LongMaxSuspicious < 0 {
		return fmt.Errorf("ip_limit suspicious maximums must not be negative")
	}

	if cfg.LinkToken.TokenTTL <= 0 || cfg.LinkToken.PingTTL <= 0 {
		return fmt.Errorf("link_token TTLs must be positive")
	}
	if cfg.LinkToken.Length < 8 {
		return fmt.Errorf("link_token.length must be at least 8, got %d", cfg.LinkToken.Length)
	}

	for method, rule := range cfg.RateLimits {
		if !rule.Valid() {
			return fmt.Errorf("rate_limits.%s needs a positive window and requests", method)
		}
		if rule.BlockDuration < 0 {
			return fmt.Errorf("rate_limits.%s.block_duration must not be negative", method)
		}
	}
	return nil
}
