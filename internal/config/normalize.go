package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Resolve validates p, applies the parameter interaction cascade and builds
// the typed Settings. Mutually exclusive network modes and unsupported
// options are rejected before the cascade touches p.
//
// The returned interactions describe every soft-set that took effect; they
// are for logging only.
func Resolve(p *Params) (*Settings, []Interaction, error) {
	if err := validateNetworkMode(p); err != nil {
		return nil, nil, err
	}
	if err := validateUnsupported(p); err != nil {
		return nil, nil, err
	}
	interactions := ApplyCascade(p)

	s := &Settings{}
	if err := s.normalize(p); err != nil {
		return nil, nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	return s, interactions, nil
}

func (s *Settings) normalize(p *Params) error {
	if err := s.normalizePaths(p); err != nil {
		return err
	}
	s.normalizeWallet(p)
	s.normalizeNetwork(p)
	s.normalizeLogging(p)
	s.normalizeMixing(p)
	s.Staking = p.Bool("staking", true)
	sleep := p.Int("minersleep", defaultMinerSleepMilli)
	if sleep <= 0 {
		sleep = defaultMinerSleepMilli
	}
	s.MinerSleep = time.Duration(sleep) * time.Millisecond
	s.MetricsBind = strings.TrimSpace(p.String("metricsbind", ""))
	return nil
}

func (s *Settings) normalizePaths(p *Params) error {
	switch {
	case p.Bool("testnet", false):
		s.Network = NetworkTestnet
	case p.Bool("regtest", false):
		s.Network = NetworkRegtest
	default:
		s.Network = NetworkMain
	}

	base, err := DataDirFor(p)
	if err != nil {
		return err
	}
	s.BaseDir = base
	s.DataDir = base
	if sub := s.Network.subdir(); sub != "" {
		s.DataDir = filepath.Join(base, sub)
	}
	if s.ConfigPath, err = ConfigPathFor(p); err != nil {
		return err
	}

	pid := p.String("pid", defaultPIDFile)
	if strings.HasPrefix(pid, "~") {
		if pid, err = expandPath(pid); err != nil {
			return configErrorf("pid", "%v", err)
		}
	} else if !filepath.IsAbs(pid) {
		pid = filepath.Join(s.DataDir, pid)
	}
	s.PIDFile = filepath.Clean(pid)

	for _, file := range p.All("loadblock") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		expanded, err := expandPath(file)
		if err != nil {
			return configErrorf("loadblock", "%v", err)
		}
		s.LoadBlocks = append(s.LoadBlocks, expanded)
	}
	return nil
}

func (s *Settings) normalizeWallet(p *Params) {
	s.WalletFile = strings.TrimSpace(p.String("wallet", defaultWalletFile))
	s.DisableWallet = p.Bool("disablewallet", false)
	s.Rescan = p.Bool("rescan", false)
	s.SalvageWallet = p.Bool("salvagewallet", false)
	s.ReindexAddr = p.Bool("reindexaddr", false)
	s.UpgradeWallet = p.Bool("upgradewallet", false)
	if s.UpgradeWallet {
		// A bare -upgradewallet (or =1) means the latest format.
		if v := p.Int("upgradewallet", 0); v > 1 {
			s.UpgradeWalletMax = v
		}
	}
	s.KeyPool = int(p.Int("keypool", defaultKeyPool))
	if s.KeyPool < 0 {
		s.KeyPool = 0
	}
}

func (s *Settings) normalizeNetwork(p *Params) {
	s.Listen = p.Bool("listen", true)
	s.Discover = p.Bool("discover", true)
	s.DNSSeed = p.Bool("dnsseed", true)
	s.UPnP = p.Bool("upnp", false)
	s.Port = int(p.Int("port", int64(s.Network.DefaultPort())))
	s.Bind = nonEmpty(p.All("bind"))
	s.Connect = nonEmpty(p.All("connect"))
	s.AddNode = nonEmpty(p.All("addnode"))
	s.ExternalIP = nonEmpty(p.All("externalip"))
	for _, name := range nonEmpty(p.All("onlynet")) {
		s.OnlyNet = append(s.OnlyNet, strings.ToLower(name))
	}
	s.Proxy = withDefaultPort(strings.TrimSpace(p.String("proxy", "")))
	tor := strings.TrimSpace(p.String("tor", ""))
	if tor == "0" {
		tor = ""
	}
	s.Tor = withDefaultPort(tor)
	s.MaxConnections = int(p.Int("maxconnections", defaultMaxConnections))
	s.ConnectTimeout = time.Duration(p.Int("timeout", defaultConnectTimeout)) * time.Millisecond
}

func (s *Settings) normalizeLogging(p *Params) {
	debugValues := p.All("debug")
	s.Debug = p.Has("debug")
	for _, v := range debugValues {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "0" {
			s.Debug = false
			s.DebugCategories = nil
			break
		}
		if v == "" || v == "1" {
			continue
		}
		s.DebugCategories = append(s.DebugCategories, v)
	}
	if p.Bool("nodebug", false) {
		s.Debug = false
		s.DebugCategories = nil
	}
	if p.Has("debugnet") {
		s.Warnings = append(s.Warnings, "deprecated argument -debugnet ignored, use -debug=net")
	}
	s.PrintToConsole = p.Bool("printtoconsole", false)
	s.LogTimestamps = p.Bool("logtimestamps", true)
	s.ShrinkDebugFile = p.Bool("shrinkdebugfile", !s.Debug)
	s.LogFormat = strings.ToLower(strings.TrimSpace(p.String("logformat", defaultLogFormat)))
	if s.LogFormat == "" {
		s.LogFormat = defaultLogFormat
	}
}

func (s *Settings) normalizeMixing(p *Params) {
	s.Masternode = p.Bool("masternode", false)
	s.MasternodePrivKey = strings.TrimSpace(p.String("masternodeprivkey", ""))
	s.MasternodeAddr = strings.TrimSpace(p.String("masternodeaddr", ""))
	s.LiteMode = p.Bool("litemode", false)
	s.EnableDarksend = p.Bool("enabledarksend", false)

	rounds := int(p.Int("darksendrounds", defaultDarksendRounds))
	rounds = min(max(rounds, minDarksendRounds), maxDarksendRounds)
	s.DarksendRounds = rounds

	provider := int(p.Int("liquidityprovider", 0))
	s.LiquidityProvider = min(max(provider, 0), maxLiquidityProvider)
	if s.LiquidityProvider != 0 {
		s.EnableDarksend = true
		s.DarksendRounds = liquidityRounds
	}
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func withDefaultPort(addr string) string {
	if addr == "" || strings.Contains(addr, "]:") {
		return addr
	}
	if strings.HasPrefix(addr, "[") {
		return addr + ":" + defaultProxyPort
	}
	if strings.Count(addr, ":") == 1 {
		return addr
	}
	if strings.Count(addr, ":") > 1 {
		return "[" + addr + "]:" + defaultProxyPort
	}
	return addr + ":" + defaultProxyPort
}
