package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath = "/etc/systemd/system/thinkbatt.service"
	// systemctl is replaced in tests.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=thinkbatt battery charge threshold daemon
After=multi-user.target

[Service]
Type=simple
ExecStart=/path/to/thinkbatt daemon --config /path/to/config ARGS
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// Unit renders the systemd unit for the given executable.
func Unit(exePath, configPath string, allowNonRoot bool) string {
	args := ""
	if allowNonRoot {
		args = "--allow-non-root-access"
	}
	unit := strings.ReplaceAll(unitTemplate, "/path/to/thinkbatt", exePath)
	unit = strings.ReplaceAll(unit, "/path/to/config", configPath)
	unit = strings.ReplaceAll(unit, " ARGS", strings.TrimRight(" "+args, " "))
	return unit
}

func Install(configPath string, allowNonRoot bool) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)
	logrus.Infof("writing systemd unit to %s", unitPath)

	err = os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(Unit(exePath, configPath, allowNonRoot)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting thinkbatt")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", filepath.Base(unitPath))
}
