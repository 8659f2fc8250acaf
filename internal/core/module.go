// Package core provides the module system the bot is assembled from:
// a registry of module constructors, a provisioning context shared by the
// modules, and the App that starts and stops them in order.
package core

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleID identifies a module, namespaced with dots (e.g. "channel.telegram").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, ok := strings.Cut(string(id), ".")
	if !ok {
		return ""
	}
	return ns
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	_, name, _ := strings.Cut(string(id), ".")
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}

// A module opts into the lifecycle steps it needs by implementing the
// matching interfaces. Loading runs Configure, Provision and Validate in
// that order; App then calls Start in load order and Stop in reverse.

// Configurable receives the module's section of the configuration file.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens resources and publishes or looks up
// services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned module without side effects.
type Validator interface {
	Validate() error
}

// Starter launches the module's goroutines and listeners.
type Starter interface {
	Start() error
}

// Stopper releases what Provision and Start acquired. It is also called
// on modules that were provisioned but never started when loading fails.
type Stopper interface {
	Stop(ctx context.Context) error
}
