package model

// Bundle is the set of named output files collected at the end of an
// invocation. Outputs whose gating branch did not execute are absent
// from the map rather than present with a nil placeholder.
type Bundle map[string]any

// Has reports whether the bundle contains the named output.
func (b Bundle) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Names returns the output names present in the bundle, unordered.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	return names
}
