package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings is the typed, fully resolved view of a Params set. It is built
// once by Resolve and never mutated afterwards.
type Settings struct {
	Network    Network
	BaseDir    string
	DataDir    string
	ConfigPath string
	PIDFile    string

	WalletFile       string
	DisableWallet    bool
	Rescan           bool
	SalvageWallet    bool
	UpgradeWallet    bool
	UpgradeWalletMax int64
	KeyPool          int
	ReindexAddr      bool
	LoadBlocks       []string

	Listen         bool
	Discover       bool
	DNSSeed        bool
	UPnP           bool
	Port           int
	Bind           []string
	Connect        []string
	AddNode        []string
	ExternalIP     []string
	OnlyNet        []string
	Proxy          string
	Tor            string
	MaxConnections int
	ConnectTimeout time.Duration

	Debug           bool
	DebugCategories []string
	PrintToConsole  bool
	LogTimestamps   bool
	ShrinkDebugFile bool
	LogFormat       string

	Masternode        bool
	MasternodePrivKey string
	MasternodeAddr    string
	EnableDarksend    bool
	DarksendRounds    int
	LiquidityProvider int
	LiteMode          bool

	Staking    bool
	MinerSleep time.Duration

	MetricsBind string

	// Warnings lists non-critical problems (deprecated options and the
	// like) that the caller should surface without aborting.
	Warnings []string
}

// DataDirFor returns the base data directory named by p (before the
// network suffix), expanded to an absolute path.
func DataDirFor(p *Params) (string, error) {
	dir, err := expandPath(p.String("datadir", defaultDataDir))
	if err != nil {
		return "", configErrorf("datadir", "%v", err)
	}
	return dir, nil
}

// ConfigPathFor returns the configuration file path named by p. Relative
// paths are taken relative to the base data directory.
func ConfigPathFor(p *Params) (string, error) {
	base, err := DataDirFor(p)
	if err != nil {
		return "", err
	}
	conf := p.String("conf", defaultConfigFile)
	if strings.HasPrefix(conf, "~") {
		return expandPath(conf)
	}
	if !filepath.IsAbs(conf) {
		conf = filepath.Join(base, conf)
	}
	return filepath.Clean(conf), nil
}

// EnsureDirectories creates the network data directory.
func (s *Settings) EnsureDirectories() error {
	if err := os.MkdirAll(s.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory %q: %w", s.DataDir, err)
	}
	return nil
}

// WalletPath returns the absolute path of the key store file.
func (s *Settings) WalletPath() string {
	return filepath.Join(s.DataDir, s.WalletFile)
}

// LockPath returns the single-instance marker file path.
func (s *Settings) LockPath() string {
	return filepath.Join(s.DataDir, ".lock")
}

// StoragePath returns the storage environment directory.
func (s *Settings) StoragePath() string {
	return filepath.Join(s.DataDir, "database")
}

// DebugLogPath returns the daemon log file path.
func (s *Settings) DebugLogPath() string {
	return filepath.Join(s.DataDir, "debug.log")
}

// SocketPath returns the control service socket path.
func (s *Settings) SocketPath() string {
	return filepath.Join(s.DataDir, "coind.sock")
}

// LogLevel maps the debug switches onto a slog level name.
func (s *Settings) LogLevel() string {
	if s.Debug {
		return "debug"
	}
	return "info"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
