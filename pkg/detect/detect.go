// Package detect selects the battery back end for the running machine.
package detect

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/kmod"
	"github.com/charlie0129/thinkbatt/pkg/lgcare"
	"github.com/charlie0129/thinkbatt/pkg/natacpi"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
	"github.com/charlie0129/thinkbatt/pkg/tpsmapi"
)

// Options configure Detect. Zero values use the real system.
type Options struct {
	// Root is prepended to every sysfs path. Empty for the real system.
	Root    string
	Modules kmod.Loader

	TPSmapiEnabled bool
	NatACPIEnabled bool
}

// Attempt records the result of one vendor probe.
type Attempt struct {
	Plugin string `json:"plugin"`
	Result string `json:"result"`
}

// Result is the selected back end and how it was found.
type Result struct {
	Backend  battery.Backend `json:"-"`
	Attempts []Attempt       `json:"attempts"`
}

type plugin struct {
	name  string
	probe func(opts Options, fs sysfile.FS, native *natacpi.Reader) (battery.Backend, error)
}

// plugins are tried in order. The last one always matches.
var plugins = []plugin{
	{
		name: "tpsmapi",
		probe: func(opts Options, fs sysfile.FS, native *natacpi.Reader) (battery.Backend, error) {
			b, err := tpsmapi.Probe(tpsmapi.Options{
				FS:      fs,
				Native:  native,
				Modules: opts.Modules,
				Enabled: opts.TPSmapiEnabled,
			})
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	},
	{
		name: "lgcare",
		probe: func(opts Options, fs sysfile.FS, native *natacpi.Reader) (battery.Backend, error) {
			b, err := lgcare.Probe(lgcare.Options{
				FS:      fs,
				Native:  native,
				Enabled: opts.NatACPIEnabled,
			})
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	},
	{
		name: "natacpi",
		probe: func(_ Options, _ sysfile.FS, native *natacpi.Reader) (battery.Backend, error) {
			b, err := natacpi.Probe(native)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	},
}

// Detect tries every vendor plugin in order. A plugin that does not match
// passes on to the next one. A plugin that matches without finding any
// battery ends detection with battery.ErrNoBatteries.
func Detect(opts Options) (*Result, error) {
	if opts.Modules == nil {
		opts.Modules = kmod.Modprobe{}
	}
	fs := sysfile.New(opts.Root)
	native := natacpi.NewReader(opts.Root)

	res := &Result{}
	for _, p := range plugins {
		b, err := p.probe(opts, fs, native)
		switch {
		case err == nil:
			res.Backend = b
			res.Attempts = append(res.Attempts, Attempt{Plugin: p.name, Result: b.Status().String()})
			logrus.WithFields(logrus.Fields{
				"plugin":    p.name,
				"status":    b.Status(),
				"batteries": b.Registry().Len(),
			}).Info("battery back end selected")
			return res, nil
		case errors.Is(err, battery.ErrNoMatch):
			res.Attempts = append(res.Attempts, Attempt{Plugin: p.name, Result: "no match"})
			logrus.WithField("plugin", p.name).Debug("plugin does not apply")
		case errors.Is(err, battery.ErrNoBatteries):
			res.Attempts = append(res.Attempts, Attempt{Plugin: p.name, Result: "no batteries"})
			return res, pkgerrors.Wrapf(err, "plugin %s", p.name)
		default:
			return res, pkgerrors.Wrapf(err, "plugin %s failed", p.name)
		}
	}

	return res, battery.ErrNoBatteries
}
