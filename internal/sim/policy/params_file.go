package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type paramsFile struct {
	Kind    string    `json:"kind"`
	Updates uint64    `json:"updates"`
	Theta   []float64 `json:"theta"`
}

// SaveParams writes the current weights of l as JSON so a later run can continue
// training from them.
func SaveParams(path string, l *Linear) error {
	p := l.Params()
	b, err := json.MarshalIndent(paramsFile{Kind: KindLinear, Updates: l.Updates(), Theta: p[:]}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// LoadParams replaces the weights of l with the ones stored at path.
func LoadParams(path string, l *Linear) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f paramsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if f.Kind != KindLinear {
		return fmt.Errorf("%s: kind %q, want %q", path, f.Kind, KindLinear)
	}
	var p Params
	if len(f.Theta) != len(p) {
		return fmt.Errorf("%s: %d weights, want %d", path, len(f.Theta), len(p))
	}
	copy(p[:], f.Theta)
	l.SetParams(p)
	return nil
}
