// Package common holds the pause switch shared by native modules.
package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView built from node configuration.
type Pauses map[string]bool

// NewPauses marks each named module as paused.
func NewPauses(modules ...string) Pauses {
	p := make(Pauses, len(modules))
	for _, m := range modules {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			p[m] = true
		}
	}
	return p
}

// IsPaused implements PauseView.
func (p Pauses) IsPaused(module string) bool {
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
