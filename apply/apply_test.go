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
package apply

import (
	"bytes"
	"io"
	"testing"

	"github.com/ebostijancic/fwup/internal/config"
	"github.com/ebostijancic/fwup/progress"
	"github.com/ebostijancic/fwup/requirement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	writes map[int64][]byte
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{writes: make(map[int64][]byte)}
}

func (f *fakeTarget) WriteAt(b []byte, off int64) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes[off] = cp
	return len(b), nil
}

type byteResource struct {
	data map[string][]byte
}

func (r byteResource) open(title string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.data[title])), nil
}

func TestRun_SkipsTaskWhenReqlistNotMet(t *testing.T) {
	target := newFakeTarget()
	resources := byteResource{data: map[string][]byte{"rootfs": []byte("payload")}}

	cfg := &config.Config{
		Tasks: []*config.Task{
			{
				Name:    "always-false",
				Reqlist: requirement.EncodeList([][]string{{"require-path-on-device", "/a", "/dev/x"}}),
				Resources: []config.TaskResource{
					{Title: "rootfs", BlockOffset: 0},
				},
			},
		},
	}

	ctx := &requirement.Context{
		PathOnDevice: func(path, device string) (bool, error) { return false, nil },
	}

	err := Run(cfg, ctx, target, resources.open, nil)
	require.NoError(t, err)
	assert.Empty(t, target.writes, "a task whose reqlist fails must not be applied")
}

func TestRun_AppliesTaskWhenReqlistMet(t *testing.T) {
	target := newFakeTarget()
	resources := byteResource{data: map[string][]byte{"rootfs": []byte("payload!")}}

	cfg := &config.Config{
		Tasks: []*config.Task{
			{
				Name:    "always-true",
				Reqlist: requirement.EncodeList([][]string{{"require-path-on-device", "/a", "/dev/x"}}),
				Resources: []config.TaskResource{
					{Title: "rootfs", BlockOffset: 1},
				},
			},
		},
	}

	ctx := &requirement.Context{
		PathOnDevice: func(path, device string) (bool, error) { return true, nil },
	}

	var out bytes.Buffer
	reporter := progress.NewReporter(progress.Numeric, &out, nil, 1)

	err := Run(cfg, ctx, target, resources.open, reporter)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload!"), target.writes[BlockSize])
}

func TestRun_TaskWithoutReqlistAlwaysApplies(t *testing.T) {
	target := newFakeTarget()
	resources := byteResource{data: map[string][]byte{"rootfs": []byte("x")}}

	cfg := &config.Config{
		Tasks: []*config.Task{
			{
				Name:      "unconditional",
				Resources: []config.TaskResource{{Title: "rootfs", BlockOffset: 0}},
			},
		},
	}

	err := Run(cfg, &requirement.Context{}, target, resources.open, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), target.writes[0])
}
