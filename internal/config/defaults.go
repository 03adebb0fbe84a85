package config

const (
	defaultDataDir         = "~/.coind"
	defaultConfigFile      = "coind.conf"
	defaultPIDFile         = "coind.pid"
	defaultWalletFile      = "wallet.db"
	defaultLogFormat       = "console"
	defaultMainPort        = 24055
	defaultTestnetPort     = 18065
	defaultRegtestPort     = 18444
	defaultProxyPort       = "9050"
	defaultMaxConnections  = 200
	defaultConnectTimeout  = 5000
	maxConnectTimeout      = 600000
	defaultKeyPool         = 100
	defaultDarksendRounds  = 2
	minDarksendRounds      = 1
	maxDarksendRounds      = 16
	liquidityRounds        = 99999
	maxLiquidityProvider   = 100
	defaultMinerSleepMilli = 500
)

// Network selects the chain parameters the node runs with.
type Network string

const (
	NetworkMain    Network = "main"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
)

// DefaultPort returns the peer listening port for the network.
func (n Network) DefaultPort() int {
	switch n {
	case NetworkTestnet:
		return defaultTestnetPort
	case NetworkRegtest:
		return defaultRegtestPort
	default:
		return defaultMainPort
	}
}

// subdir is the data directory suffix for non-main networks.
func (n Network) subdir() string {
	switch n {
	case NetworkTestnet, NetworkRegtest:
		return string(n)
	default:
		return ""
	}
}
