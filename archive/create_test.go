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
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/internal/sign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestCreate_CREATE1 covers a single file-resource backed by two
// concatenated host files: it must report length=10,
// sha256=SHA256("helloworld"), and an archive entry holding the 10-byte
// concatenation.
func TestCreate_CREATE1(t *testing.T) {
	dir := t.TempDir()
	aPath := writeTempFile(t, dir, "a.img", "hello")
	bPath := writeTempFile(t, dir, "b.img", "world")

	cfg := &config.Config{
		FileResources: []*config.FileResource{
			{Title: "rootfs", HostPath: aPath + ";" + bPath},
		},
	}

	outPath := filepath.Join(dir, "out.fwup")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	err := CreateFromConfig(cfg, outPath, Options{
		FwupVersion: "test-1.0",
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)

	want := sha256.Sum256([]byte("helloworld"))
	sec := cfg.FileResourceByTitle("rootfs")
	require.NotNil(t, sec)
	assert.EqualValues(t, 10, sec.Length)
	assert.Equal(t, hex.EncodeToString(want[:]), sec.SHA256)
	assert.Equal(t, "", sec.Blake2b256, "blake2b disabled by default must leave the field empty")
	assert.Equal(t, "2024-03-01T12:00:00Z", cfg.MetaCreationDate)
	assert.Equal(t, "test-1.0", cfg.MetaFwupVersion)

	zr, err := zip.OpenReader(outPath)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 2)
	assert.Equal(t, MetaConfigName, zr.File[0].Name, "meta-config must be the first archive entry")
	assert.Equal(t, "rootfs", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body := make([]byte, 10)
	n, err := rc.Read(body)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(body[:n]))
}

func TestCreate_MissingHostPathAborts(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		FileResources: []*config.FileResource{
			{Title: "rootfs", HostPath: filepath.Join(dir, "does-not-exist.img")},
		},
	}

	err := CreateFromConfig(cfg, filepath.Join(dir, "out.fwup"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rootfs")
}

func TestCreate_AssertSizeLteAcceptsAndGteRejectsInSectorUnits(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "big.img", "0123456789") // 10 bytes

	cfg := &config.Config{
		FileResources: []*config.FileResource{
			{Title: "rootfs", HostPath: path, AssertSizeLte: 1}, // 512 bytes allowed
		},
	}

	err := CreateFromConfig(cfg, filepath.Join(dir, "out.fwup"), Options{})
	require.NoError(t, err, "10 bytes is within the 512-byte assert-size-lte budget")

	cfg.FileResources[0].SHA256 = ""
	cfg.FileResources[0].Length = 0
	cfg.FileResources[0].AssertSizeLte = 0

	// With assert-size-lte cleared (0 means "no assertion"), check the
	// rejecting side through assert-size-gte, which a 10-byte file can
	// fail directly.
	cfg.FileResources[0].AssertSizeGte = 1 // requires >= 512 bytes; file is 10
	err = CreateFromConfig(cfg, filepath.Join(dir, "out2.fwup"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assert-size-gte")
}

func TestCreate_SignsMetaConfigWhenSignerProvided(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.img", "payload")

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := &config.Config{
		FileResources: []*config.FileResource{
			{Title: "rootfs", HostPath: path},
		},
	}

	outPath := filepath.Join(dir, "out.fwup")
	err = CreateFromConfig(cfg, outPath, Options{
		Signer:      &sign.Ed25519Signer{Key: priv},
		WithBlake2b: true,
	})
	require.NoError(t, err)

	sec := cfg.FileResourceByTitle("rootfs")
	assert.NotEmpty(t, sec.Blake2b256, "blake2b must be populated when WithBlake2b is set")

	zr, err := zip.OpenReader(outPath)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 3)
	assert.Equal(t, MetaConfigName, zr.File[0].Name)
	assert.Equal(t, MetaConfigSigName, zr.File[1].Name)
	assert.Equal(t, "rootfs", zr.File[2].Name)

	metaRC, err := zr.File[0].Open()
	require.NoError(t, err)
	metaBytes := make([]byte, zr.File[0].UncompressedSize64)
	_, err = metaRC.Read(metaBytes)
	metaRC.Close()
	require.NoError(t, err)

	sigRC, err := zr.File[1].Open()
	require.NoError(t, err)
	sigBytes := make([]byte, zr.File[1].UncompressedSize64)
	_, err = sigRC.Read(sigBytes)
	sigRC.Close()
	require.NoError(t, err)

	verifier := &sign.Ed25519Verifier{Key: pub}
	assert.NoError(t, verifier.Verify(metaBytes, sigBytes))
}

func TestCreate_ProgressReceivesOneReportPerFileResource(t *testing.T) {
	dir := t.TempDir()
	aPath := writeTempFile(t, dir, "a.img", "x")
	bPath := writeTempFile(t, dir, "b.img", "y")

	cfg := &config.Config{
		FileResources: []*config.FileResource{
			{Title: "one", HostPath: aPath},
			{Title: "two", HostPath: bPath},
		},
	}

	var reported []int64
	prog := reporterFunc(func(units int64) { reported = append(reported, units) })

	err := CreateFromConfig(cfg, filepath.Join(dir, "out.fwup"), Options{Progress: prog})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, reported)
}

type reporterFunc func(units int64)

func (f reporterFunc) Report(units int64) { f(units) }
