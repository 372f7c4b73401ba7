// Package kmod loads kernel modules through modprobe.
package kmod

import (
	"context"
	"os/exec"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Loader loads kernel modules and tells whether they are installed.
type Loader interface {
	Load(name string) error
	Installed(name string) bool
}

var _ Loader = Modprobe{}

// Modprobe is a Loader calling modprobe and modinfo.
type Modprobe struct{}

const commandTimeout = 10 * time.Second

func (Modprobe) Load(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "modprobe", name).CombinedOutput()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"module": name,
			"output": string(out),
		}).Debug("modprobe failed")
		return pkgerrors.Wrapf(err, "failed to load kernel module %s", name)
	}

	logrus.WithField("module", name).Debug("kernel module loaded")
	return nil
}

func (Modprobe) Installed(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return exec.CommandContext(ctx, "modinfo", name).Run() == nil
}
