package ocr

import (
	"fmt"
	"sort"
	"strings"
)

// Engines is the registry of configured OCR engines with a default.
type Engines struct {
	def    string
	byName map[string]Engine
}

func NewEngines(defaultName string, engines ...Engine) (*Engines, error) {
	e := &Engines{def: strings.ToLower(defaultName), byName: make(map[string]Engine, len(engines))}
	for _, eng := range engines {
		if eng == nil {
			continue
		}
		e.byName[strings.ToLower(eng.Name())] = eng
	}
	if _, ok := e.byName[e.def]; !ok {
		return nil, fmt.Errorf("default OCR engine %q is not configured", defaultName)
	}
	return e, nil
}

// Get resolves name, falling back to the default engine when name is empty.
func (e *Engines) Get(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = e.def
	}
	eng, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown OCR engine %q; available: %s", name, strings.Join(e.Names(), ", "))
	}
	return eng, nil
}

func (e *Engines) Default() string { return e.def }

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byName))
	for n := range e.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
