package scheme

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type schemeFile struct {
	Commands []CommandDef `toml:"command"`
}

// LoadFile reads a TOML command grammar and returns a resolver over it.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scheme load failed (%s): %w", path, err)
	}
	var file schemeFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("scheme parse failed (%s): %w", path, err)
	}
	if len(file.Commands) == 0 {
		return nil, fmt.Errorf("scheme %s defines no commands", path)
	}
	return NewStatic(file.Commands)
}
