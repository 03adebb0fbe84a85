package config

import (
	"encoding/hex"
	"net"
	"path/filepath"
	"strconv"
	"strings"
)

// Validate ensures the resolved settings are usable.
func (s *Settings) Validate() error {
	if err := s.validateWallet(); err != nil {
		return err
	}
	if err := s.validateNetwork(); err != nil {
		return err
	}
	if err := s.validateLogging(); err != nil {
		return err
	}
	if err := s.validateMasternode(); err != nil {
		return err
	}
	return nil
}

// validateNetworkMode runs on the raw parameters: selecting two networks is
// contradictory and must be caught before anything else looks at them.
func validateNetworkMode(p *Params) error {
	if p.Bool("testnet", false) && p.Bool("regtest", false) {
		return configErrorf("", "-testnet and -regtest are mutually exclusive")
	}
	return nil
}

func validateUnsupported(p *Params) error {
	if p.Has("socks") {
		return configErrorf("socks", "setting the SOCKS version is no longer supported, only SOCKS5 proxies are")
	}
	return nil
}

func (s *Settings) validateWallet() error {
	if s.WalletFile == "" {
		return configErrorf("wallet", "must not be empty")
	}
	if filepath.Base(s.WalletFile) != s.WalletFile || s.WalletFile == "." || s.WalletFile == ".." {
		return configErrorf("wallet", "%q resides outside data directory %s", s.WalletFile, s.DataDir)
	}
	if s.KeyPool > 100000 {
		return configErrorf("keypool", "must be at most 100000")
	}
	return nil
}

func (s *Settings) validateNetwork() error {
	if s.Port <= 0 || s.Port > 65535 {
		return configErrorf("port", "must be between 1 and 65535")
	}
	if s.MaxConnections < 0 {
		return configErrorf("maxconnections", "must not be negative")
	}
	timeoutMS := s.ConnectTimeout.Milliseconds()
	if timeoutMS <= 0 || timeoutMS >= maxConnectTimeout {
		return configErrorf("timeout", "must be between 1 and %d milliseconds", maxConnectTimeout-1)
	}
	for _, name := range s.OnlyNet {
		switch name {
		case "ipv4", "ipv6", "tor":
		default:
			return configErrorf("onlynet", "unknown network %q", name)
		}
	}
	if s.Proxy != "" {
		if err := validateHostPort(s.Proxy, false); err != nil {
			return configErrorf("proxy", "invalid address %q: %v", s.Proxy, err)
		}
	}
	if s.Tor != "" {
		if err := validateHostPort(s.Tor, false); err != nil {
			return configErrorf("tor", "invalid address %q: %v", s.Tor, err)
		}
	}
	if s.MetricsBind != "" {
		if err := validateHostPort(s.MetricsBind, true); err != nil {
			return configErrorf("metricsbind", "invalid address %q: %v", s.MetricsBind, err)
		}
	}
	return nil
}

func (s *Settings) validateLogging() error {
	switch s.LogFormat {
	case "console", "json":
		return nil
	default:
		return configErrorf("logformat", "must be console or json")
	}
}

func (s *Settings) validateMasternode() error {
	if !s.Masternode {
		return nil
	}
	if s.LiteMode {
		return configErrorf("litemode", "a masternode cannot run in lite mode")
	}
	if s.MasternodePrivKey == "" {
		return configErrorf("masternodeprivkey", "required when -masternode is set")
	}
	seed, err := hex.DecodeString(s.MasternodePrivKey)
	if err != nil || len(seed) != 32 {
		return configErrorf("masternodeprivkey", "must be a 32-byte hex seed")
	}
	if s.MasternodeAddr != "" {
		if err := validateHostPort(s.MasternodeAddr, false); err != nil {
			return configErrorf("masternodeaddr", "invalid address %q: %v", s.MasternodeAddr, err)
		}
	}
	return nil
}

func validateHostPort(addr string, allowEmptyHost bool) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if !allowEmptyHost && strings.TrimSpace(host) == "" {
		return errMissingHost
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return errBadPort
	}
	return nil
}
