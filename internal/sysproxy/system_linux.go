package sysproxy

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnsupportedDesktopEnvironment is returned on Linux systems without
// gsettings. System proxy configuration is currently only supported on
// GNOME.
var ErrUnsupportedDesktopEnvironment = errors.New("system proxy configuration is currently only supported on GNOME")

func readAutoConfigURL() (string, error) {
	if !binaryExists("gsettings") {
		return "", ErrUnsupportedDesktopEnvironment
	}

	cmd := exec.Command("gsettings", "get", "org.gnome.system.proxy", "autoconfig-url")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get autoconfig-url: %v\n%s", err, out)
	}

	// gsettings prints GVariant strings, e.g. 'http://example.com/pac'.
	url := strings.Trim(strings.TrimSpace(string(out)), "'")
	return url, nil
}

func setAutoConfigURL(url string) error {
	if !binaryExists("gsettings") {
		return ErrUnsupportedDesktopEnvironment
	}

	commands := [][]string{
		{"gsettings", "set", "org.gnome.system.proxy", "autoconfig-url", url},
		{"gsettings", "set", "org.gnome.system.proxy", "mode", "auto"},
	}

	for _, command := range commands {
		cmd := exec.Command(command[0], command[1:]...) // #nosec G204
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("run system proxy command (%s): %w\n%s", strings.Join(command, " "), err, out)
		}
	}
	return nil
}

func readSnapshot() (Snapshot, error) {
	url, err := readAutoConfigURL()
	if err != nil {
		return Snapshot{}, err
	}
	// GNOME keeps per-scheme proxy hosts rather than a single server +
	// bypass pair, so the snapshot carries the URL only.
	return Snapshot{AutoConfigURL: url}, nil
}

func binaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
