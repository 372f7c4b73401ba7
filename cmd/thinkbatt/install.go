package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/threshold"
	daemonutils "github.com/charlie0129/thinkbatt/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install thinkbatt daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Install thinkbatt daemon as a systemd service.

The daemon applies the configured charge thresholds at boot, after resume and on the
REAPPLY_THRESHOLDS_CRON schedule. You must run this command as root.

By default, only root user is allowed to access the thinkbatt daemon. Use the
--allow-non-root-access flag to let other users run commands with --remote.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the thinkbatt daemon.")
			} else {
				logrus.Info("only root user is allowed to access the thinkbatt daemon.")
			}

			err := daemonutils.Install(configPath, allowNonRootAccess)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `thinkbatt install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access thinkbatt daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	noResetThresholds := false

	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall thinkbatt daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall thinkbatt daemon from systemd.

This stops the daemon and restores the default charge thresholds of every battery.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			if !noResetThresholds {
				logrus.Infof("resetting charge thresholds")
				if err := resetThresholds(cmd); err != nil {
					return err
				}
			}

			cmd.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `thinkbatt' again. If you want a complete uninstall, you can remove both config file and thinkbatt itself manually.\n", configPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&noResetThresholds, "no-reset-thresholds", false, "Do not restore the default charge thresholds after uninstalling.")

	return cmd
}

// resetThresholds writes the vendor defaults to every battery that has
// threshold control.
func resetThresholds(cmd *cobra.Command) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := detectBackend(conf)
	if err != nil {
		return err
	}
	if !b.Capabilities().CanWriteThresholds() {
		return nil
	}

	ctrl := threshold.New(b)
	var results []threshold.Result
	for _, bat := range b.Registry().All() {
		res := ctrl.Write(bat, threshold.Default(), threshold.Default(), threshold.Interactive)
		printResult(cmd.OutOrStdout(), res, false)
		results = append(results, res)
	}
	if threshold.Worst(results).Failed() {
		return errOutcome
	}
	return nil
}
