// Package presets provides the presets command code.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/llamactx/sdk/tools/defaults"
	"github.com/ardanlabs/llamactx/sdk/tools/presets"
)

// Run lists the available presets, or prints the preset named in args[0].
func Run(args []string) error {
	dir := defaults.PresetsDir("")

	if len(args) == 1 {
		p, err := presets.Find(args[0], dir)
		if err != nil {
			return fmt.Errorf("presets: %w", err)
		}

		data, err := presets.Marshal(p)
		if err != nil {
			return fmt.Errorf("presets: %w", err)
		}

		fmt.Print(string(data))
		return nil
	}

	fmt.Println("Builtin:")
	for _, name := range presets.Names() {
		p, _ := presets.Builtin(name)
		fmt.Printf("  %-12s %s\n", p.Name, p.Description)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("presets: %w", err)
	}

	fmt.Printf("\n%s:\n", dir)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		p, err := presets.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Printf("  %-12s ERROR: %s\n", strings.TrimSuffix(entry.Name(), ext), err)
			continue
		}

		fmt.Printf("  %-12s %s\n", p.Name, p.Description)
	}

	return nil
}
