package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// ErrUnsupportedURL is returned for URLs a browser should not be pointed at.
var ErrUnsupportedURL = errors.New("browser: only http and https URLs can be opened")

// Launcher shows rawURL to the user, usually in the system browser.
type Launcher func(rawURL string) error

// SystemLauncher opens rawURL in the default browser on Linux, macOS and
// Windows. It does not wait for the browser to exit.
func SystemLauncher(rawURL string) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", rawURL)
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", rawURL)
	default:
		return fmt.Errorf("browser: unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: failed to open: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	return nil
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ErrUnsupportedURL
	}
	return nil
}
