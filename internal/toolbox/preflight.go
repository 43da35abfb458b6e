package toolbox

import (
	"fmt"
	"os/exec"
	"strings"
)

// MissingToolsError lists every required program that is not on PATH.
type MissingToolsError struct {
	Names []string
}

func (e *MissingToolsError) Error() string {
	return fmt.Sprintf("required tools not found on PATH: %s", strings.Join(e.Names, ", "))
}

// Preflight checks that every named program can be found. All missing names
// are reported, not only the first one.
func Preflight(names []string) error {
	return preflight(names, exec.LookPath)
}

func preflight(names []string, lookPath func(string) (string, error)) error {
	seen := map[string]bool{}
	var missing []string
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingToolsError{Names: missing}
	}
	return nil
}
