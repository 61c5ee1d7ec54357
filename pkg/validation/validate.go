// Package validation holds the payload checks applied before a mutation
// is committed. Limits are process-wide and settable from config at
// startup.
package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"boardsync/pkg/models"
)

// Limits bounds the user-supplied parts of shapes and contributions.
type Limits struct {
	// MaxCoord bounds |x| and |y|; width and height are capped at
	// 2*MaxCoord so a shape can always span the canvas.
	MaxCoord float64
	// MaxTextLen caps shape label text (bytes).
	MaxTextLen int
	// MaxContentLen caps a single contribution body (bytes).
	MaxContentLen int
	// MaxActorNameLen caps display names (bytes).
	MaxActorNameLen int
}

// DefaultLimits returns the limits used when config does not override them.
func DefaultLimits() Limits {
	return Limits{
		MaxCoord:        1 << 20,
		MaxTextLen:      4 * 1024,
		MaxContentLen:   64 * 1024,
		MaxActorNameLen: 128,
	}
}

var limits = DefaultLimits()

// SetLimits overrides the process-wide limits. Zero fields keep their
// defaults.
func SetLimits(l Limits) {
	def := DefaultLimits()
	if l.MaxCoord <= 0 {
		l.MaxCoord = def.MaxCoord
	}
	if l.MaxTextLen <= 0 {
		l.MaxTextLen = def.MaxTextLen
	}
	if l.MaxContentLen <= 0 {
		l.MaxContentLen = def.MaxContentLen
	}
	if l.MaxActorNameLen <= 0 {
		l.MaxActorNameLen = def.MaxActorNameLen
	}
	limits = l
}

// hex color like #fff or #a1b2c3
var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateShape rejects geometry that cannot be rendered: non-finite or
// out-of-range coordinates, negative extents, malformed colors and
// oversized labels.
func ValidateShape(s models.ShapePayload) error {
	var errs []string
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", s.X}, {"y", s.Y}, {"w", s.W}, {"h", s.H}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			errs = append(errs, fmt.Sprintf("%s is not finite", c.name))
		}
	}
	if math.Abs(s.X) > limits.MaxCoord || math.Abs(s.Y) > limits.MaxCoord {
		errs = append(errs, "position out of range")
	}
	if s.W < 0 || s.H < 0 {
		errs = append(errs, "negative extent")
	}
	if s.W > 2*limits.MaxCoord || s.H > 2*limits.MaxCoord {
		errs = append(errs, "extent out of range")
	}
	if s.Color != "" && !colorRe.MatchString(s.Color) {
		errs = append(errs, fmt.Sprintf("invalid color %q", s.Color))
	}
	if len(s.Text) > limits.MaxTextLen {
		errs = append(errs, fmt.Sprintf("text too long: %d > %d", len(s.Text), limits.MaxTextLen))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateContribution bounds shared-document writes.
func ValidateContribution(actorName, content string) error {
	var errs []string
	if len(content) > limits.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content too long: %d > %d", len(content), limits.MaxContentLen))
	}
	if len(actorName) > limits.MaxActorNameLen {
		errs = append(errs, fmt.Sprintf("actor name too long: %d > %d", len(actorName), limits.MaxActorNameLen))
	}
	if strings.ContainsRune(actorName, '\x1f') || strings.ContainsRune(content, '\x1f') {
		// 0x1F is the internal zone delimiter; never let it in from the wire
		errs = append(errs, "control character in payload")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
