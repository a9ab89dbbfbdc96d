package builtin

import "github.com/oriys/wardencore/registry"

// All returns every built-in frame, ready to pass to
// registry.WithBuiltins.
func All() []registry.Frame {
	return []registry.Frame{
		NewSecurityFrame(),
		NewQualityFrame(),
		NewDuplicationFrame(),
	}
}
