package config

// Interaction records a default derived from another option.
type Interaction struct {
	Trigger string
	Key     string
	Value   bool
}

type cascadeRule struct {
	trigger string
	applies func(p *Params) bool
	sets    []softBool
}

type softBool struct {
	key   string
	value bool
}

// cascadeRules is applied top to bottom. Later rules read the state left by
// earlier ones (rule 4 depends on what rules 1-3 decided for listen), so the
// order is part of the contract.
var cascadeRules = []cascadeRule{
	{
		trigger: "-bind set",
		applies: func(p *Params) bool { return p.Has("bind") },
		sets:    []softBool{{"listen", true}},
	},
	{
		trigger: "-connect set",
		applies: func(p *Params) bool { return len(p.All("connect")) > 0 },
		sets:    []softBool{{"dnsseed", false}, {"listen", false}},
	},
	{
		trigger: "-proxy set",
		applies: func(p *Params) bool { return p.Has("proxy") },
		sets:    []softBool{{"listen", false}, {"discover", false}},
	},
	{
		trigger: "-listen=0",
		applies: func(p *Params) bool { return !p.Bool("listen", true) },
		sets:    []softBool{{"upnp", false}, {"discover", false}},
	},
	{
		trigger: "-externalip set",
		applies: func(p *Params) bool { return p.Has("externalip") },
		sets:    []softBool{{"discover", false}},
	},
	{
		trigger: "-salvagewallet=1",
		applies: func(p *Params) bool { return p.Bool("salvagewallet", false) },
		sets:    []softBool{{"rescan", true}},
	},
}

// ApplyCascade runs the parameter interaction rules over p in place and
// returns the soft-sets that changed something.
func ApplyCascade(p *Params) []Interaction {
	var applied []Interaction
	for _, rule := range cascadeRules {
		if !rule.applies(p) {
			continue
		}
		for _, s := range rule.sets {
			if p.SoftSetBool(s.key, s.value) {
				applied = append(applied, Interaction{Trigger: rule.trigger, Key: s.key, Value: s.value})
			}
		}
	}
	return applied
}
