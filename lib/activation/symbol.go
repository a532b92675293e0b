package activation

// SymbolActivator activates a payload that is a Go plugin shared object (.so). It
// opens the object and looks up the exported symbol for the unit key. The
// symbol may be the value itself or a pointer to it; a pointer to an
// interface is dereferenced.
type SymbolActivator struct {
	// Dir receives the shared object; os.TempDir() when empty.
	Dir string
	// Name maps a key to the exported symbol; SymbolName when nil.
	Name func(key string) string
}

func (a *SymbolActivator) symbolName(key string) string {
	if a.Name != nil {
		return a.Name(key)
	}
	return SymbolName(key)
}
