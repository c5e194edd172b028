package transport

import (
	"sort"
	"strings"

	"github.com/BaSui01/bulkflow/types"
)

// Names of the configuration reuse policies.
const (
	// PolicyReuseSource takes the source configuration as a whole.
	PolicyReuseSource = "reuse-source"
	// PolicyIgnoreSource keeps the initial configuration as a whole.
	PolicyIgnoreSource = "ignore-source"
	// PolicyServerList copies the server list when the initial one is empty.
	PolicyServerList = "server-list"
	// PolicySecurity copies security settings when the initial ones are empty.
	PolicySecurity = "security"
)

type fieldPolicy func(target *Config, source Config)

var fieldPolicies = map[string]fieldPolicy{
	PolicyServerList: func(target *Config, source Config) {
		if len(target.ServerList) == 0 && len(source.ServerList) > 0 {
			target.ServerList = append([]string(nil), source.ServerList...)
		}
	},
	PolicySecurity: func(target *Config, source Config) {
		if target.Security.IsEmpty() && !source.Security.IsEmpty() {
			sec := *source.Security
			target.Security = &sec
		}
	},
}

// ResolveConfig combines an owned initial configuration with a source
// configuration proposed by a peer sharing the same destination. Invalid
// policy sets are configuration errors reported here, never at use time.
// Neither input is modified.
func ResolveConfig(policies []string, initial Config, source *Config) (Config, error) {
	if len(policies) == 0 {
		return Config{}, types.NewConfigurationError("at least one config reuse policy must be provided")
	}

	wholeObject := ""
	for _, name := range policies {
		switch name {
		case PolicyReuseSource, PolicyIgnoreSource:
			wholeObject = name
		default:
			if _, ok := fieldPolicies[name]; !ok {
				return Config{}, types.NewConfigurationError(
					"unknown config reuse policy %q, available: %s", name, strings.Join(availablePolicies(), ", "))
			}
		}
	}

	if wholeObject != "" {
		if len(policies) > 1 {
			return Config{}, types.NewConfigurationError(
				"policy %q cannot be combined with other policies: %s", wholeObject, strings.Join(policies, ", "))
		}
		if wholeObject == PolicyIgnoreSource {
			return initial.Clone(), nil
		}
		if source == nil {
			return Config{}, types.NewConfigurationError("policy %q requires a source config", PolicyReuseSource)
		}
		return source.Clone(), nil
	}

	resolved := initial.Clone()
	if source == nil {
		return resolved, nil
	}
	for _, name := range policies {
		fieldPolicies[name](&resolved, *source)
	}
	return resolved, nil
}

func availablePolicies() []string {
	names := []string{PolicyReuseSource, PolicyIgnoreSource}
	for name := range fieldPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
