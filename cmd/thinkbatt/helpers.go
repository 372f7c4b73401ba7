package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/client"
	"github.com/charlie0129/thinkbatt/pkg/config"
	"github.com/charlie0129/thinkbatt/pkg/detect"
)

func newClient() *client.Client {
	return client.NewClient(unixSocketPath)
}

// loadConfig reads the configuration file. A missing file yields defaults.
func loadConfig() (*config.File, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return conf, nil
}

// detectBackend runs hardware detection honoring the driver switches of conf.
func detectBackend(conf config.Config) (battery.Backend, error) {
	res, err := detect.Detect(detect.Options{
		Root:           sysfsRoot,
		TPSmapiEnabled: conf.TPSmapiEnabled(),
		NatACPIEnabled: conf.NatACPIEnabled(),
	})
	if err != nil {
		return nil, err
	}

	for _, a := range res.Attempts {
		logrus.WithFields(logrus.Fields{
			"plugin": a.Plugin,
			"result": a.Result,
		}).Debug("detection attempt")
	}
	return res.Backend, nil
}

// resolveBattery looks up id, where an empty id means the main battery.
func resolveBattery(b battery.Backend, id string) (battery.Battery, error) {
	if id == "" {
		id = battery.DefaultID
	}
	bat, ok := b.Registry().Resolve(id)
	if !ok {
		return battery.Battery{}, fmt.Errorf("battery %s not found", id)
	}
	return bat, nil
}

// optionalArg returns args[i], or "" if absent.
func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
