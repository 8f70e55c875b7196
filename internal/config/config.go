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

// Package config provides the configuration data model that the archive
// creator and requirement engine consume. The configuration-file grammar
// itself is treated as an external collaborator (the real fwup grammar is
// libconfuse-based); this package follows
// mendersoftware/mender's own approach to the same concern
// (conf.MenderConfigFromFile / conf.LoadConfig): a plain Go struct loaded
// from JSON with encoding/json and wrapped errors via pkg/errors, rather
// than a hand-rolled recursive-descent parser for a bespoke grammar.
package config

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// FileResource is one file-resource section: a named archive entry backed
// by one or more local files concatenated in declaration order.
type FileResource struct {
	Title string `json:"title"`

	// HostPath is a ';'-delimited list of one or more local file paths,
	// read and concatenated in order.
	HostPath string `json:"host-path"`

	// AssertSizeLte and AssertSizeGte are optional size assertions, given
	// in 512-byte units (multiplied by 512 before comparison against the
	// resource's byte length). Zero means "no assertion".
	AssertSizeLte int64 `json:"assert-size-lte,omitempty"`
	AssertSizeGte int64 `json:"assert-size-gte,omitempty"`

	// Length, SHA256, and Blake2b256 are synthesized during archive
	// creation (see package archive) and are not meant to be hand-authored
	// in the source configuration, though a round-tripped meta-config will
	// carry them.
	Length     int64  `json:"length,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
	Blake2b256 string `json:"blake2b-256,omitempty"`
}

// UbootEnvironment names a U-Boot environment block on the target image,
// referenced by require-uboot-variable.
type UbootEnvironment struct {
	Name string `json:"name"`

	// BlockOffset is in 512-byte sectors.
	BlockOffset uint64 `json:"block-offset"`
	EnvSize     uint64 `json:"env-size"`
}

// TaskResource associates a file-resource with the block offset (in
// 512-byte sectors) its contents should be streamed to during apply.
type TaskResource struct {
	Title       string `json:"title"`
	BlockOffset uint64 `json:"block-offset"`
}

// Task is a guarded unit of work in the firmware descriptor: a reqlist
// (ANDed predicates) gating a set of resources to stream to the target
// image.
type Task struct {
	Name string `json:"name"`

	// Reqlist is the flat arity-prefixed requirement-list encoding:
	// arity_1, arg_1_0, ..., arg_1_{arity_1-1}, arity_2, ... . arg_i_0 is
	// always the requirement name.
	Reqlist []string `json:"reqlist,omitempty"`

	Resources []TaskResource `json:"resources,omitempty"`
}

// Config is the parsed, and (after archive creation) annotated,
// configuration.
type Config struct {
	MetaCreationDate string `json:"meta-creation-date,omitempty"`
	MetaFwupVersion  string `json:"meta-fwup-version,omitempty"`

	FileResources     []*FileResource     `json:"file-resources,omitempty"`
	UbootEnvironments []*UbootEnvironment `json:"uboot-environments,omitempty"`
	Tasks             []*Task             `json:"tasks,omitempty"`
}

// Parse reads and validates a configuration from r.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: error parsing configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ParseFile opens path and parses it as a configuration file.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: can't open configuration file %q", path)
	}
	defer f.Close()

	return Parse(f)
}

// Validate checks structural invariants that are cheap to check up front:
// every file-resource has a host-path, and every uboot-environment has a
// name. Per-requirement argv validation is the requirement engine's job
// (package requirement), not this package's.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.FileResources))
	for _, fr := range c.FileResources {
		if fr.HostPath == "" {
			return errors.Errorf("config: host-path must be set for file-resource %q", fr.Title)
		}
		if seen[fr.Title] {
			return errors.Errorf("config: duplicate file-resource title %q", fr.Title)
		}
		seen[fr.Title] = true
	}

	ubootSeen := make(map[string]bool, len(c.UbootEnvironments))
	for _, ue := range c.UbootEnvironments {
		if ue.Name == "" {
			return errors.New("config: uboot-environment section requires a name")
		}
		ubootSeen[ue.Name] = true
	}

	return nil
}

// FileResourceByTitle looks up a file-resource section by title.
func (c *Config) FileResourceByTitle(title string) *FileResource {
	for _, fr := range c.FileResources {
		if fr.Title == title {
			return fr
		}
	}
	return nil
}

// UbootEnvironmentByName looks up a uboot-environment section by name, the
// same lookup require-uboot-variable's validator and evaluator both need
// (cfg_gettsec(fctx->cfg, "uboot-environment", uboot_env_name) in the
// original).
func (c *Config) UbootEnvironmentByName(name string) *UbootEnvironment {
	for _, ue := range c.UbootEnvironments {
		if ue.Name == name {
			return ue
		}
	}
	return nil
}

// Save serializes the configuration as JSON to w. Used to write the
// meta-config entry into the archive.
func (c *Config) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Annotate sets the top-level creation metadata fwup synthesizes at
// creation time. fwupVersion is the packager version string.
func (c *Config) Annotate(now time.Time, fwupVersion string) {
	c.MetaCreationDate = now.UTC().Format(time.RFC3339)
	c.MetaFwupVersion = fwupVersion
}
