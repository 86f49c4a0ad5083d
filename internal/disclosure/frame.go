// Package disclosure derives role-specific partial disclosures from signed
// credentials without re-issuing or re-signing them.
package disclosure

import (
	"fmt"
	"slices"
	"strings"

	"rxvc/internal/platform/config"
	dErrors "rxvc/pkg/domain-errors"
)

// FrameName is the closed set of disclosure frames.
type FrameName string

const (
	FramePharmacy  FrameName = config.FramePharmacy
	FrameInsurance FrameName = config.FrameInsurance
	FrameAudit     FrameName = config.FrameAudit
)

var frameNames = []FrameName{FramePharmacy, FrameInsurance, FrameAudit}

// FrameNames lists every frame.
func FrameNames() []FrameName {
	return slices.Clone(frameNames)
}

// ParseFrameName validates a frame name from external input.
func ParseFrameName(s string) (FrameName, error) {
	name := FrameName(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(frameNames, name) {
		return name, nil
	}
	return "", dErrors.Newf(dErrors.CodeUnknownFrame, "unknown disclosure frame %q", s)
}

func (f FrameName) String() string { return string(f) }

// stateFlags names the record-state flags a frame reveals. They come from the
// credential record, never from the signed payload.
func (f FrameName) stateFlags() (status, dispensed, confirmed bool) {
	switch f {
	case FramePharmacy:
		return true, false, false
	case FrameInsurance:
		return false, true, true
	case FrameAudit:
		return true, true, true
	}
	return false, false, false
}

// Catalog holds the configured field set of every frame.
type Catalog struct {
	frames map[FrameName]config.Frame
}

// NewCatalog validates cfg and builds the catalog. Every frame name must be
// configured.
func NewCatalog(cfg config.Engine) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Catalog{frames: make(map[FrameName]config.Frame, len(frameNames))}
	for _, name := range frameNames {
		frame, ok := cfg.Frames[string(name)]
		if !ok {
			return nil, fmt.Errorf("disclosure frame %q is not configured", name)
		}
		fields := slices.Clone(frame.Fields)
		slices.Sort(fields)
		c.frames[name] = config.Frame{Version: frame.Version, Fields: slices.Compact(fields)}
	}
	return c, nil
}

// Fields returns the sorted field paths revealed by name.
func (c *Catalog) Fields(name FrameName) []string {
	return slices.Clone(c.frames[name].Fields)
}

// Version returns the configured version of name.
func (c *Catalog) Version(name FrameName) string {
	return c.frames[name].Version
}
