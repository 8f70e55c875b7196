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
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/internal/sign"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MetaConfigName is the name of the first archive entry: the annotated,
// serialized configuration.
const MetaConfigName = "meta.conf"

// MetaConfigSigName is the name of the detached-signature entry written
// immediately after MetaConfigName when a signing key is supplied.
const MetaConfigSigName = "meta.conf.sig"

// deflateLevel is the compression level requested for every archive entry.
// archive/zip doesn't expose a level knob on zip.Deflate directly; a
// custom compressor is registered below to apply it.
const deflateLevel = 9

func registerDeflateLevel(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, deflateLevel)
	})
}

// Options configures archive creation.
type Options struct {
	// Signer produces a detached signature over the serialized
	// meta-config. May be nil, in which case no signature entry is
	// written.
	Signer sign.Signer

	// WithBlake2b mirrors whether the configured signature backend
	// supports the optional BLAKE2b-256 digest.
	WithBlake2b bool

	// FwupVersion is the packager version string written into
	// meta-creation-date's sibling field, meta-fwup-version.
	FwupVersion string

	// Now overrides the creation timestamp; nil means time.Now.
	Now func() time.Time

	// Progress, if non-nil, receives one Report(1) call per file-resource
	// processed during metadata computation.
	Progress interface{ Report(units int64) }
}

// Create builds a deflate-compressed ZIP firmware archive at outputPath
// from the configuration at configPath: parse, annotate, compute metadata,
// emit archive, close. The meta-config is signed only when opts.Signer is
// set.
func Create(configPath, outputPath string, opts Options) error {
	cfg, err := config.ParseFile(configPath)
	if err != nil {
		return err
	}

	return CreateFromConfig(cfg, outputPath, opts)
}

// CreateFromConfig is Create, taking an already-parsed configuration. It
// mutates cfg in place, annotating meta-creation-date, meta-fwup-version,
// and each file-resource's length/sha256/blake2b-256, so the meta-config
// emitted into the archive is the configuration's post-annotation state.
func CreateFromConfig(cfg *config.Config, outputPath string, opts Options) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cfg.Annotate(now(), opts.FwupVersion)

	if err := computeFileMetadata(cfg, opts); err != nil {
		return err
	}

	return createArchive(cfg, outputPath, opts)
}

// computeFileMetadata streams, for each file-resource, every ';'-delimited
// host-path in order through a dual hash, accumulating total size, then
// writes length/sha256/blake2b-256 back into the section.
func computeFileMetadata(cfg *config.Config, opts Options) error {
	for _, sec := range cfg.FileResources {
		hs := NewHashState(opts.WithBlake2b)

		for _, path := range strings.Split(sec.HostPath, ";") {
			if path == "" {
				continue
			}
			if err := hashOneFile(hs, sec.Title, path); err != nil {
				return err
			}
		}

		sec.Length = hs.Total()
		sec.SHA256 = hs.SHA256Hex()
		if opts.WithBlake2b {
			sec.Blake2b256 = hs.Blake2b256Hex()
		}

		if opts.Progress != nil {
			opts.Progress.Report(1)
		}
	}

	return nil
}

func hashOneFile(hs *HashState, sectionTitle, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Errorf("can't open path '%s' in file-resource '%s'", path, sectionTitle)
	}
	defer f.Close()

	if _, err := hs.CopyFrom(f); err != nil {
		return errors.Wrapf(err, "error reading path '%s' in file-resource '%s'", path, sectionTitle)
	}
	return nil
}

// createArchive opens the zip, writes the signed meta-config first, then
// each file-resource in configuration order, then closes -- on every exit
// path.
func createArchive(cfg *config.Config, outputPath string, opts Options) (rerr error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(err, "error creating archive '%s'", outputPath)
	}

	zw := zip.NewWriter(out)
	registerDeflateLevel(zw)
	defer func() {
		// Both success and failure paths must close and release the
		// archive writer so a partial archive is never left dangling.
		if cerr := zw.Close(); cerr != nil && rerr == nil {
			rerr = errors.Wrap(cerr, "error finalizing archive")
		}
		if cerr := out.Close(); cerr != nil && rerr == nil {
			rerr = errors.Wrap(cerr, "error closing archive file")
		}
	}()

	if err := addMetaConfig(cfg, zw, opts); err != nil {
		return err
	}

	if err := addFileResources(cfg, zw); err != nil {
		return err
	}

	log.Infof("archive: wrote %d file-resource(s) to %s", len(cfg.FileResources), outputPath)
	return nil
}

func addMetaConfig(cfg *config.Config, zw *zip.Writer, opts Options) error {
	var buf bytes.Buffer
	if err := cfg.Save(&buf); err != nil {
		return errors.Wrap(err, "error serializing meta-config")
	}

	w, err := newDeflateEntry(zw, MetaConfigName)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "error writing meta-config entry")
	}

	if opts.Signer == nil {
		return nil
	}

	sig, err := opts.Signer.Sign(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "error signing meta-config")
	}

	sw, err := newDeflateEntry(zw, MetaConfigSigName)
	if err != nil {
		return err
	}
	if _, err := sw.Write(sig); err != nil {
		return errors.Wrap(err, "error writing meta-config signature entry")
	}

	return nil
}

func addFileResources(cfg *config.Config, zw *zip.Writer) error {
	for _, sec := range cfg.FileResources {
		if sec.HostPath == "" {
			return errors.Errorf("specify a host-path for file-resource '%s'", sec.Title)
		}

		if err := assertSize(sec); err != nil {
			return err
		}

		log.Debugf("archive: writing entry %q (%d bytes)", sec.Title, sec.Length)

		w, err := newDeflateEntry(zw, sec.Title)
		if err != nil {
			return err
		}

		for _, path := range strings.Split(sec.HostPath, ";") {
			if path == "" {
				continue
			}
			if err := copyFileInto(w, sec.Title, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFileInto(w io.Writer, sectionTitle, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Errorf("can't open path '%s' in file-resource '%s'", path, sectionTitle)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "error archiving path '%s' in file-resource '%s'", path, sectionTitle)
	}
	return nil
}

// assertSize checks assert-size-lte/assert-size-gte, both given in
// 512-byte units and multiplied by 512 before comparison.
func assertSize(sec *config.FileResource) error {
	if sec.AssertSizeLte != 0 && sec.Length > sec.AssertSizeLte*512 {
		return errors.Errorf("file-resource '%s' is %d bytes, exceeding assert-size-lte of %d bytes",
			sec.Title, sec.Length, sec.AssertSizeLte*512)
	}
	if sec.AssertSizeGte != 0 && sec.Length < sec.AssertSizeGte*512 {
		return errors.Errorf("file-resource '%s' is %d bytes, under assert-size-gte of %d bytes",
			sec.Title, sec.Length, sec.AssertSizeGte*512)
	}
	return nil
}

func newDeflateEntry(zw *zip.Writer, name string) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating archive entry '%s'", name)
	}
	return w, nil
}
