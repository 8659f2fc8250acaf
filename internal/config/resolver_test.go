package config

import (
	"slices"
	"testing"
)

func TestResolve_Order(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: modules(
		"channel.telegram",
		"gateway.http",
		"misc.extra",
		"provider.openai",
		"usage.sqlite",
		"channel.another",
	)}

	want := []string{
		"usage.sqlite",
		"provider.openai",
		"gateway.http",
		"channel.another",
		"channel.telegram",
		"misc.extra",
	}
	if got := Resolve(cfg); !slices.Equal(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_Empty(t *testing.T) {
	t.Parallel()

	if got := Resolve(&Config{}); len(got) != 0 {
		t.Errorf("Resolve() = %v, want empty", got)
	}
}
