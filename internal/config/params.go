package config

import (
	"sort"
	"strconv"
	"strings"
)

// Params is the parameter set handed to the daemon: option name to the
// ordered list of values the operator supplied. Single-valued options hold
// one element; repeated options (connect, bind, ...) keep every value in
// the order given.
//
// Keys are stored without leading dashes. A key that is present was either
// supplied by the operator or filled in by a soft-set; a key that is absent
// falls back to the default chosen by whoever reads it.
type Params struct {
	values map[string][]string
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string][]string)}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(key), "-"))
}

// Set records an operator-supplied value, replacing earlier values for key.
func (p *Params) Set(key, value string) {
	p.values[normalizeKey(key)] = []string{value}
}

// Add appends an operator-supplied value to a multi-valued option.
func (p *Params) Add(key, value string) {
	k := normalizeKey(key)
	p.values[k] = append(p.values[k], value)
}

// SetAll replaces every value of key.
func (p *Params) SetAll(key string, values []string) {
	cp := make([]string, len(values))
	copy(cp, values)
	p.values[normalizeKey(key)] = cp
}

// Has reports whether key holds a value.
func (p *Params) Has(key string) bool {
	_, ok := p.values[normalizeKey(key)]
	return ok
}

// Get returns the last value supplied for key.
func (p *Params) Get(key string) (string, bool) {
	vals, ok := p.values[normalizeKey(key)]
	if !ok || len(vals) == 0 {
		return "", ok
	}
	return vals[len(vals)-1], true
}

// String returns the value of key or fallback when absent.
func (p *Params) String(key, fallback string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return fallback
}

// All returns a copy of every value supplied for key.
func (p *Params) All(key string) []string {
	vals := p.values[normalizeKey(key)]
	if len(vals) == 0 {
		return nil
	}
	cp := make([]string, len(vals))
	copy(cp, vals)
	return cp
}

// Bool interprets key as a boolean. A present key with an empty value
// ("-listen") counts as true, so does any non-zero integer.
func (p *Params) Bool(key string, fallback bool) bool {
	v, ok := p.Get(key)
	if !ok {
		return fallback
	}
	return parseBool(v)
}

// Int interprets key as an integer, returning fallback when absent or malformed.
func (p *Params) Int(key string, fallback int64) int64 {
	v, ok := p.Get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// SoftSet assigns value to key only if key is currently absent. It reports
// whether anything changed; callers use the result for logging only.
func (p *Params) SoftSet(key, value string) bool {
	k := normalizeKey(key)
	if _, ok := p.values[k]; ok {
		return false
	}
	p.values[k] = []string{value}
	return true
}

// SoftSetBool is SoftSet for boolean options.
func (p *Params) SoftSetBool(key string, value bool) bool {
	if value {
		return p.SoftSet(key, "1")
	}
	return p.SoftSet(key, "0")
}

// Keys returns the present keys in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	out := NewParams()
	for k, v := range p.values {
		out.SetAll(k, v)
	}
	return out
}

func parseBool(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	return n != 0
}
