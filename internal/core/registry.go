package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds the module constructors linked into the binary.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &registry{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule records instance's constructor. Modules call it from
// init; a missing ID, a nil constructor or a duplicate ID panics.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.ID.Namespace() == "":
		panic(fmt.Sprintf("core: module %s: ID needs a namespace", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s: New must not be nil", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, dup := modules.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// GetModule returns the registered module with the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	modules.mu.RLock()
	out := make([]ModuleInfo, 0, len(modules.byID))
	for _, info := range modules.byID {
		out = append(out, info)
	}
	modules.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry empties the registry between tests.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	clear(modules.byID)
}
