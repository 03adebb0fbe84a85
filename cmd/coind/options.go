package main

import (
	"github.com/spf13/pflag"

	"coind/internal/config"
)

type optionKind int

const (
	optionValue optionKind = iota
	optionSwitch
	optionList
)

type option struct {
	name  string
	kind  optionKind
	usage string
}

// nodeOptions lists every option the node accepts. Each is also valid as a
// config file key.
var nodeOptions = []option{
	{"datadir", optionValue, "Data directory"},
	{"conf", optionValue, "Configuration file, relative to the data directory unless absolute"},
	{"pid", optionValue, "Process id file"},
	{"testnet", optionSwitch, "Use the test network"},
	{"regtest", optionSwitch, "Use the regression test network"},

	{"wallet", optionValue, "Key store file within the data directory"},
	{"disablewallet", optionSwitch, "Do not load the key store"},
	{"rescan", optionSwitch, "Rescan the ledger for key store transactions"},
	{"salvagewallet", optionSwitch, "Try to recover keys from a corrupt key store"},
	{"upgradewallet", optionSwitch, "Upgrade the key store to the latest (or given) format"},
	{"keypool", optionValue, "Number of pre-generated keys"},
	{"reindexaddr", optionSwitch, "Rebuild the address index"},
	{"loadblock", optionList, "Import blocks from an external file"},

	{"listen", optionSwitch, "Accept inbound peer connections"},
	{"discover", optionSwitch, "Discover own addresses"},
	{"dnsseed", optionSwitch, "Query DNS seeds for peer addresses"},
	{"upnp", optionSwitch, "Map the listening port with UPnP"},
	{"port", optionValue, "Peer listening port"},
	{"bind", optionList, "Bind to the given address"},
	{"connect", optionList, "Connect only to the given node"},
	{"addnode", optionList, "Add a node to connect to"},
	{"externalip", optionList, "Own public address"},
	{"onlynet", optionList, "Only connect to nodes in the given network (ipv4, ipv6, tor)"},
	{"proxy", optionValue, "SOCKS5 proxy"},
	{"tor", optionValue, "Proxy for Tor hidden services"},
	{"socks", optionValue, "SOCKS version (no longer supported)"},
	{"maxconnections", optionValue, "Maximum number of peer connections"},
	{"timeout", optionValue, "Peer connect timeout in milliseconds"},

	{"debug", optionList, "Log debug output, optionally for one category"},
	{"nodebug", optionSwitch, "Turn off debug logging"},
	{"debugnet", optionSwitch, "Deprecated, use --debug=net"},
	{"printtoconsole", optionSwitch, "Log to the console instead of debug.log"},
	{"logtimestamps", optionSwitch, "Prefix log lines with a timestamp"},
	{"shrinkdebugfile", optionSwitch, "Shrink debug.log on startup"},
	{"logformat", optionValue, "Log format (console or json)"},

	{"masternode", optionSwitch, "Run as a masternode"},
	{"masternodeprivkey", optionValue, "Masternode signing key (hex)"},
	{"masternodeaddr", optionValue, "Masternode public address"},
	{"enabledarksend", optionSwitch, "Join coin mixing sessions"},
	{"darksendrounds", optionValue, "Mixing rounds per input"},
	{"liquidityprovider", optionValue, "Provide mixing liquidity (0-100)"},
	{"litemode", optionSwitch, "Disable masternode and mixing features"},
	{"staking", optionSwitch, "Attempt to stake"},
	{"minersleep", optionValue, "Delay between staking attempts in milliseconds"},

	{"metricsbind", optionValue, "Serve /metrics and /healthz on this address"},
}

// registerOptions adds every node option to fs. Switches accept a bare
// --name (meaning 1) or --name=0.
func registerOptions(fs *pflag.FlagSet) {
	for _, opt := range nodeOptions {
		switch opt.kind {
		case optionList:
			fs.StringArray(opt.name, nil, opt.usage)
			if opt.name == "debug" {
				fs.Lookup(opt.name).NoOptDefVal = "1"
			}
		case optionSwitch:
			fs.String(opt.name, "", opt.usage)
			fs.Lookup(opt.name).NoOptDefVal = "1"
		default:
			fs.String(opt.name, "", opt.usage)
		}
	}
}

// collectParams copies the options the operator set on fs into a parameter
// set. Untouched flags stay absent so the config file and defaults apply.
func collectParams(fs *pflag.FlagSet) *config.Params {
	kinds := make(map[string]optionKind, len(nodeOptions))
	for _, opt := range nodeOptions {
		kinds[opt.name] = opt.kind
	}
	p := config.NewParams()
	fs.Visit(func(f *pflag.Flag) {
		kind, ok := kinds[f.Name]
		if !ok {
			return
		}
		if kind == optionList {
			values, err := fs.GetStringArray(f.Name)
			if err == nil {
				p.SetAll(f.Name, values)
			}
			return
		}
		p.Set(f.Name, f.Value.String())
	})
	return p
}
