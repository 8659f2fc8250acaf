package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/tgpt/internal/core"
)

// namespaceOrder ranks module namespaces by load order. Modules look up
// the services of earlier ones while provisioning and starting, and are
// stopped in reverse: the channel drains and flushes its counters before
// the usage store closes.
var namespaceOrder = map[string]int{
	"usage":    0,
	"provider": 1,
	"gateway":  2,
	"channel":  3,
}

// Resolve returns the module IDs of the configuration in load order:
// ranked namespaces first, then any other namespace, sorted by ID within
// a rank.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(
			cmp.Compare(rank(a), rank(b)),
			cmp.Compare(a, b),
		)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}
