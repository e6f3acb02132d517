package permission

import (
	"context"
	"slices"
)

// StaticSource answers from a fixed grant list. Plain Linux hosts have no
// runtime permission model, so the operator declares what the agent holds.
type StaticSource struct {
	granted []string
}

// NewStaticSource creates a source holding the listed capabilities.
// Include PowerExemption to report the power exemption as held.
func NewStaticSource(granted []string) *StaticSource {
	return &StaticSource{granted: slices.Clone(granted)}
}

// Granted reports whether capability is in the list.
func (s *StaticSource) Granted(_ context.Context, capability string) (bool, error) {
	return slices.Contains(s.granted, capability), nil
}

// PowerExempt reports whether PowerExemption is in the list.
func (s *StaticSource) PowerExempt(_ context.Context) (bool, error) {
	return slices.Contains(s.granted, PowerExemption), nil
}

// OpenSettings is unsupported on a headless host.
func (s *StaticSource) OpenSettings(context.Context, string) error {
	return ErrUnsupported
}
