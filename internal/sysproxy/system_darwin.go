package sysproxy

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var reInterfaceName = regexp.MustCompile(`^[\w\d]+$`)

// networkService resolves the network service backing the default
// interface, e.g. "Wi-Fi".
func networkService() (string, error) {
	cmd := exec.Command("sh", "-c", "scutil --nwi | grep 'Network interfaces' | cut -d ' ' -f 3")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get default interface: %v\n%s", err, out)
	}
	interfaceName := strings.TrimSpace(string(out))
	if len(interfaceName) == 0 {
		return "", errors.New("no default interface found")
	}
	if !reInterfaceName.MatchString(interfaceName) {
		// Interface names should only contain alphanumeric characters, but
		// validate before interpolating into a shell command.
		return "", fmt.Errorf("invalid interface name: %s", interfaceName)
	}

	cmd = exec.Command("sh", "-c", fmt.Sprintf("networksetup -listnetworkserviceorder | grep %s -B 1 | head -n 1 | cut -d ' ' -f 2-", interfaceName)) // #nosec G204 -- Interface name is validated above
	out, err = cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get network service: %v\n%s", err, out)
	}
	service := strings.TrimSpace(string(out))
	if len(service) == 0 {
		return "", errors.New("no network service found")
	}
	return service, nil
}

func readAutoConfigURL() (string, error) {
	service, err := networkService()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("networksetup", "-getautoproxyurl", service)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get auto proxy url for %q: %v\n%s", service, err, out)
	}

	// Output has the form "URL: <url>\nEnabled: Yes". An unset URL reads
	// "(null)".
	for _, line := range strings.Split(string(out), "\n") {
		if rest, ok := strings.CutPrefix(line, "URL:"); ok {
			url := strings.TrimSpace(rest)
			if url == "(null)" {
				return "", nil
			}
			return url, nil
		}
	}
	return "", nil
}

func setAutoConfigURL(url string) error {
	service, err := networkService()
	if err != nil {
		return err
	}

	cmd := exec.Command("networksetup", "-setautoproxyurl", service, url)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("set auto proxy url for %q: %v\n%s", service, err, out)
	}

	cmd = exec.Command("networksetup", "-setautoproxystate", service, "on")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("enable auto proxy for %q: %v\n%s", service, err, out)
	}

	return nil
}

func readSnapshot() (Snapshot, error) {
	url, err := readAutoConfigURL()
	if err != nil {
		return Snapshot{}, err
	}
	// networksetup exposes no single static proxy + bypass pair the way
	// the Windows registry does, so the snapshot carries the URL only.
	return Snapshot{AutoConfigURL: url}, nil
}
