// Copyright 2016 Mender Software AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Command fwup is the packager/applier CLI frontend: a thin urfave/cli/v2
// wrapper over the archive, requirement, device, and progress packages,
// in the same spirit as mendersoftware/mender's own cli.SetupCLI /
// app.ShowVersion wiring (cli/cli.go).
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/ebostijancic/fwup/apply"
	"github.com/ebostijancic/fwup/archive"
	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/internal/errstate"
	"github.com/ebostijancic/fwup/internal/fat"
	"github.com/ebostijancic/fwup/internal/sign"
	"github.com/ebostijancic/fwup/progress"
	"github.com/ebostijancic/fwup/requirement"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version is the packager version string stamped into meta-fwup-version at
// archive-creation time. Overridden at link time in release builds the way
// mender's own cli package stamps cli.Version.
var Version = "dev"

// lastErr is this process's last-error register, owned here rather than
// as a bare package global and threaded into requirement.Context for the
// apply subcommand, the one place a predicate failure needs to survive
// past its scalar return.
var lastErr = errstate.New()

func main() {
	app := &cli.App{
		Name:    "fwup",
		Usage:   "pack and apply raw-device firmware archives",
		Version: Version,
		Commands: []*cli.Command{
			createCommand(),
			applyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		if msg := lastErr.Get(); msg != "" {
			log.Errorf("last requirement failure: %s", msg)
		}
		os.Exit(1)
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "build a signed firmware archive from a configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Required: true, Usage: "path to the source configuration"},
			&cli.StringFlag{Name: "output", Required: true, Usage: "path to write the archive"},
			&cli.StringFlag{Name: "signing-key", Usage: "path to a raw Ed25519 private key (64 bytes); unsigned if omitted"},
		},
		Action: func(c *cli.Context) error {
			opts := archive.Options{FwupVersion: Version}

			if keyPath := c.String("signing-key"); keyPath != "" {
				signer, err := loadSigner(keyPath)
				if err != nil {
					return err
				}
				opts.Signer = signer
				opts.WithBlake2b = true
			}

			if err := archive.Create(c.String("config"), c.String("output"), opts); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", c.String("output"))
			return nil
		},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "apply file-resources from an archive onto a target device",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "archive", Required: true, Usage: "path to the firmware archive"},
			&cli.StringFlag{Name: "device", Required: true, Usage: "path to the target raw device"},
			&cli.StringFlag{Name: "progress", Value: "normal", Usage: "off|numeric|normal"},
		},
		Action: func(c *cli.Context) error {
			return runApply(c.String("archive"), c.String("device"), c.String("progress"))
		},
	}
}

func runApply(archivePath, devicePath, progressMode string) error {
	r, cfg, err := openArchiveConfig(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	target, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "can't open target device %q", devicePath)
	}
	defer target.Close()

	ctx := &requirement.Context{
		Config:       cfg,
		OutputFile:   target,
		Errors:       lastErr,
		FATCache:     unavailableFATCache,
		PathOnDevice: unavailablePathOnDevice,
	}

	mode, err := parseProgressMode(progressMode)
	if err != nil {
		return err
	}
	reporter := progress.NewReporter(mode, os.Stdout, nil, int64(len(cfg.Tasks)))

	return apply.Run(cfg, ctx, target, r.Open, reporter)
}

// unavailableFATCache is the FATCache capability wired into the live apply
// subcommand: this build carries no real FAT filesystem driver (see
// internal/fat), so a reqlist naming require-fat-file-exists or
// require-fat-file-match against it fails with a descriptive
// requirement-not-met error instead of dereferencing a nil func.
func unavailableFATCache(blockOffset uint64) (fat.Cache, error) {
	return nil, errors.Errorf("FAT driver not available for block offset %d", blockOffset)
}

// unavailablePathOnDevice is the PathOnDevice capability wired into the
// live apply subcommand: this build carries no host mount-topology probe,
// so require-path-on-device fails with a descriptive requirement-not-met
// error instead of dereferencing a nil func.
func unavailablePathOnDevice(path, device string) (bool, error) {
	return false, errors.Errorf("host mount probe not available for path %q on device %q", path, device)
}

func openArchiveConfig(path string) (*archive.Reader, *config.Config, error) {
	r, err := archive.OpenReader(path)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Config(), nil
}

func loadSigner(keyPath string) (sign.Signer, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read signing key %q", keyPath)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("signing key %q must be %d raw bytes, got %d", keyPath, ed25519.PrivateKeySize, len(raw))
	}
	return &sign.Ed25519Signer{Key: ed25519.PrivateKey(raw)}, nil
}

func parseProgressMode(s string) (progress.Mode, error) {
	switch s {
	case "off":
		return progress.Off, nil
	case "numeric":
		return progress.Numeric, nil
	case "normal":
		return progress.Normal, nil
	default:
		return progress.Off, errors.Errorf("unknown progress mode %q", s)
	}
}
