package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// reference matches ${VAR} and ${VAR:-default}.
var reference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads the YAML file at path into a Config.
//
// A .env file beside path is loaded into the environment first, without
// overriding variables that are already set. Scalar values may then
// reference the environment as ${VAR} or ${VAR:-default}; comments and
// keys are left alone. Every unresolved reference is reported.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("config: %s is empty", path)
	}
	if err := errors.Join(expand(&doc, os.LookupEnv)...); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := doc.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// expand substitutes environment references in every scalar value below n.
func expand(n *yaml.Node, lookup func(string) (string, bool)) []error {
	var errs []error
	switch n.Kind {
	case yaml.ScalarNode:
		if !reference.MatchString(n.Value) {
			return nil
		}
		n.Value = reference.ReplaceAllStringFunc(n.Value, func(ref string) string {
			m := reference.FindStringSubmatch(ref)
			if v, ok := lookup(m[1]); ok {
				return v
			}
			if len(m[0]) > len(m[1])+3 {
				return m[2]
			}
			errs = append(errs, fmt.Errorf("line %d: unresolved variable %s", n.Line, m[1]))
			return ref
		})
		// Let a plain scalar resolve again, so ${WORKERS} can feed an int.
		if n.Style&(yaml.TaggedStyle|yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			errs = append(errs, expand(n.Content[i], lookup)...)
		}
	default:
		for _, c := range n.Content {
			errs = append(errs, expand(c, lookup)...)
		}
	}
	return errs
}
