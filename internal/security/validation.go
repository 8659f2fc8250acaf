package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Payload limits for inbound webhook bodies. A Telegram update is a few
// kilobytes; media arrives as file ids, never inline.
const (
	DefaultMaxPayloadSize = 256 << 10
	DefaultMaxJSONDepth   = 16
)

// Payload validation errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bounds an inbound JSON payload. Zero fields take the
// package defaults.
type PayloadLimits struct {
	MaxSize  int
	MaxDepth int
}

func (l PayloadLimits) withDefaults() PayloadLimits {
	if l.MaxSize <= 0 {
		l.MaxSize = DefaultMaxPayloadSize
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxJSONDepth
	}
	return l
}

// ValidatePayload rejects data that is larger than the size limit, is not
// a single well-formed JSON value, or nests deeper than the depth limit.
// It walks tokens without building the value, so a hostile body is
// refused before it reaches json.Unmarshal.
func ValidatePayload(data []byte, limits PayloadLimits) error {
	limits = limits.withDefaults()

	if len(data) > limits.MaxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), limits.MaxSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth, values := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			if depth == 0 {
				values++
			}
			depth++
			if depth > limits.MaxDepth {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limits.MaxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		default:
			if depth == 0 {
				values++
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
	}
	if values != 1 {
		return fmt.Errorf("%w: %d top-level values", ErrInvalidJSON, values)
	}
	return nil
}
