package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/thinkbatt/pkg/client"
	"github.com/charlie0129/thinkbatt/pkg/config"
	"github.com/charlie0129/thinkbatt/pkg/flock"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/thinkbatt.sock"
	configPath     = config.DefaultPath
	lockPath       = flock.DefaultDischargeLock
	// sysfsRoot is prepended to every sysfs path, for testing against a copy.
	sysfsRoot = ""
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: thinkbatt daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it?")
	} else if errors.Is(err, client.ErrPermissionDenied) || errors.Is(err, os.ErrPermission) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag and use '--remote'")
	}
}

func main() {
	// thinkbatt does not need to use much.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thinkbatt",
		Short: "thinkbatt controls battery charge thresholds on ThinkPad and LG laptops",
		Long: `thinkbatt controls battery charge thresholds on ThinkPad and LG laptops.

ThinkPads are driven through the tp_smapi kernel module, which also allows
forced discharge. LG laptops are driven through the battery_care_limit node of
the lg-laptop driver. Other laptops only report battery status.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "thinkbatt daemon unix socket path")
	globalFlags.StringVar(&lockPath, "discharge-lock", lockPath, "discharge lock file path")
	globalFlags.StringVar(&sysfsRoot, "sysfs-root", sysfsRoot, "prefix for every sysfs path")
	_ = globalFlags.MarkHidden("sysfs-root")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewSetChargeCommand(),
		NewApplyCommand(),
		NewDischargeCommand(),
		NewRecalibrateCommand(),
		NewScheduleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
