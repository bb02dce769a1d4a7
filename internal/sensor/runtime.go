package sensor

import (
	"os/exec"
	"path/filepath"
)

// FindRuntime resolves the acquisition program to an absolute path. Paths
// containing a separator are used as given.
func FindRuntime(runtime string) (string, error) {
	if filepath.IsAbs(runtime) || filepath.Base(runtime) != runtime {
		return filepath.Abs(runtime)
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", err
	}

	return binPath, nil
}
