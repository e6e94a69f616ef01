package sysproxy

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/proxycat/proxycat/internal/logger"
)

const internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

var (
	wininet                       = windows.NewLazySystemDLL("wininet.dll")
	internetSetOption             = wininet.NewProc("InternetSetOptionW")
	internetOptionSettingsChanged = 39
	internetOptionRefresh         = 37
)

func readAutoConfigURL() (string, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return "", fmt.Errorf("open Internet Settings key: %w", err)
	}
	defer k.Close()

	url, _, err := k.GetStringValue("AutoConfigURL")
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read AutoConfigURL: %w", err)
	}
	return url, nil
}

func setAutoConfigURL(url string) error {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open Internet Settings key: %w", err)
	}
	defer k.Close()

	if err := k.SetStringValue("AutoConfigURL", url); err != nil {
		return fmt.Errorf("set AutoConfigURL: %w", err)
	}

	callInternetSetOption(internetOptionSettingsChanged)
	callInternetSetOption(internetOptionRefresh)

	return nil
}

func readSnapshot() (Snapshot, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open Internet Settings key: %w", err)
	}
	defer k.Close()

	var snap Snapshot
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{"ProxyServer", &snap.ProxyServer},
		{"ProxyOverride", &snap.ProxyBypass},
		{"AutoConfigURL", &snap.AutoConfigURL},
	} {
		val, _, err := k.GetStringValue(v.name)
		if err != nil {
			if errors.Is(err, registry.ErrNotExist) {
				continue
			}
			return Snapshot{}, fmt.Errorf("read %s: %w", v.name, err)
		}
		*v.dst = val
	}

	return snap, nil
}

func callInternetSetOption(dwOption int) {
	ret, _, err := internetSetOption.Call(0, uintptr(dwOption), 0, 0)
	if ret == 0 {
		logger.Warn("failed to call InternetSetOption with option %d: %v", dwOption, err)
	}
}
