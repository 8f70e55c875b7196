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

// Package fat defines the capability the requirement engine needs from a
// FAT filesystem driver. The driver itself is an explicit external
// collaborator -- its internal design (FAT12/16/32 parsing, long-name
// directory entries, cluster chains) is out of scope here. This package
// only names the interface and provides an in-memory fake good enough to
// exercise the requirement engine's require-fat-file-exists /
// require-fat-file-match predicates in tests.
package fat

import "regexp"

// Cache is a resolved handle onto a FAT filesystem image starting at some
// block offset. The requirement engine's Context.FATCache callback
// resolves and (likely) caches one of these per block offset so repeated
// predicates against the same FAT filesystem don't re-parse it.
type Cache interface {
	// Exists reports whether name is present in the filesystem's root
	// directory.
	Exists(name string) (bool, error)

	// Matches reports whether the named file's contents match pattern.
	// Whether pattern is a fixed string or a richer matcher is left to the
	// implementation, so a real driver can refine it (e.g. globbing)
	// without an interface break.
	Matches(name, pattern string) (bool, error)
}

// FakeCache is an in-memory Cache used by tests.
type FakeCache struct {
	Files map[string][]byte
}

// NewFakeCache returns an empty fake.
func NewFakeCache() *FakeCache {
	return &FakeCache{Files: make(map[string][]byte)}
}

// Exists implements Cache.
func (f *FakeCache) Exists(name string) (bool, error) {
	_, ok := f.Files[name]
	return ok, nil
}

// Matches implements Cache. pattern is interpreted as a regular expression
// against the file's raw bytes.
func (f *FakeCache) Matches(name, pattern string) (bool, error) {
	content, ok := f.Files[name]
	if !ok {
		return false, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.Match(content), nil
}
