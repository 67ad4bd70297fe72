package llmproc

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fleetpilot/corepipe/pkg/fleeterr"
)

// candidateBinaryPaths builds the fixed, ordered list of locations the
// Manager probes to find the local LLM runtime binary (spec §4.1
// "Discovery"): an environment-variable override, well-known per-OS
// install directories, then PATH.
func candidateBinaryPaths(binaryName string) []string {
	candidates := make([]string, 0, 8)

	for _, env := range []string{"FLEETNLP_LLM_BIN", "OLLAMA_BIN", "OLLAMA_PATH"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			candidates = append(candidates, v)
		}
	}

	home, _ := os.UserHomeDir()
	if strings.TrimSpace(home) != "" {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", binaryName))
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/opt/homebrew/bin/"+binaryName,
			"/usr/local/bin/"+binaryName,
			"/Applications/Ollama.app/Contents/Resources/"+binaryName,
		)
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); appData != "" {
			candidates = append(candidates, filepath.Join(appData, "Programs", "Ollama", binaryName+".exe"))
		}
	default:
		candidates = append(candidates,
			"/usr/local/bin/"+binaryName,
			"/usr/bin/"+binaryName,
			"/opt/"+binaryName+"/bin/"+binaryName,
		)
	}

	return candidates
}

// resolveBinary walks candidateBinaryPaths, returning the first entry that
// exists and is executable, falling back to exec.LookPath on PATH.
func resolveBinary(binaryName string) (string, error) {
	for _, p := range candidateBinaryPaths(binaryName) {
		if p == "" {
			continue
		}
		abs := p
		if !filepath.IsAbs(abs) {
			if a, err := filepath.Abs(p); err == nil {
				abs = a
			}
		}
		if fi, err := os.Stat(abs); err == nil && !fi.IsDir() && isExecutable(fi.Mode()) {
			return abs, nil
		}
	}

	if p, err := exec.LookPath(binaryName); err == nil {
		if a, err := filepath.Abs(p); err == nil {
			return a, nil
		}
		return p, nil
	}

	return "", fleeterr.New(fleeterr.BinaryNotFound, "no "+binaryName+" binary found on any candidate path or PATH")
}

func isExecutable(mode os.FileMode) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return mode&0o111 != 0
}

var errNilCmd = errors.New("nil command")
