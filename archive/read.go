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
	"io"

	"github.com/ebostijancic/fwup/internal/config"
	"github.com/pkg/errors"
)

// Reader opens a firmware archive for application: it exposes the
// annotated meta-config and lets callers stream individual file-resource
// entries by title, mirroring the read side of createArchive.
type Reader struct {
	zr  *zip.ReadCloser
	cfg *config.Config
}

// OpenReader opens the archive at path and parses its meta-config entry.
func OpenReader(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open archive %q", path)
	}

	f := findEntry(zr, MetaConfigName)
	if f == nil {
		zr.Close()
		return nil, errors.Errorf("archive %q has no %s entry", path, MetaConfigName)
	}

	rc, err := f.Open()
	if err != nil {
		zr.Close()
		return nil, errors.Wrap(err, "error opening meta-config entry")
	}
	defer rc.Close()

	cfg, err := config.Parse(rc)
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &Reader{zr: zr, cfg: cfg}, nil
}

// Config returns the archive's parsed meta-config.
func (r *Reader) Config() *config.Config {
	return r.cfg
}

// Signature returns the detached signature bytes over the meta-config, and
// false if the archive was created unsigned.
func (r *Reader) Signature() ([]byte, bool, error) {
	f := findEntry(r.zr, MetaConfigSigName)
	if f == nil {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, errors.Wrap(err, "error opening meta-config signature entry")
	}
	defer rc.Close()

	sig, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, errors.Wrap(err, "error reading meta-config signature entry")
	}
	return sig, true, nil
}

// SerializedConfig returns the meta-config entry's bytes exactly as stored
// in the archive, for signature verification against Signature().
func (r *Reader) SerializedConfig() ([]byte, error) {
	f := findEntry(r.zr, MetaConfigName)
	if f == nil {
		return nil, errors.New("archive has no meta-config entry")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(err, "error opening meta-config entry")
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Open returns a reader over the named file-resource's archived bytes.
func (r *Reader) Open(title string) (io.ReadCloser, error) {
	f := findEntry(r.zr, title)
	if f == nil {
		return nil, errors.Errorf("archive has no entry %q", title)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "error opening archive entry %q", title)
	}
	return rc, nil
}

// Close releases the underlying archive file.
func (r *Reader) Close() error {
	return r.zr.Close()
}

func findEntry(zr *zip.ReadCloser, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
