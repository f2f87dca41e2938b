// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//nolint:paralleltest // Tests modify package-level debug state, cannot run in parallel
package esprom

import (
	"bytes"
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveDebugState captures debug globals so tests can restore them.
func saveDebugState() (enabled bool, writer io.Writer) {
	return debugEnabled, sessionLogWriter
}

func restoreDebugState(enabled bool, writer io.Writer) {
	debugEnabled = enabled
	sessionLogWriter = writer
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	origEnabled, origWriter := saveDebugState()
	t.Cleanup(func() {
		restoreDebugState(origEnabled, origWriter)
	})

	var buf bytes.Buffer
	sessionLogWriter = &buf
	debugEnabled = false

	Debugf("sent %s: %d bytes", OpSync, 36)

	content := buf.String()
	assert.Contains(t, content, "DEBUG: sent Sync: 36 bytes")
	assert.Contains(t, content, "\n")
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	origEnabled, origWriter := saveDebugState()
	t.Cleanup(func() {
		restoreDebugState(origEnabled, origWriter)
	})

	var buf bytes.Buffer
	sessionLogWriter = &buf
	debugEnabled = false

	Debugf("test message")

	matched, err := regexp.MatchString(`\d{2}:\d{2}:\d{2}\.\d{3} DEBUG:`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "timestamp missing: %s", buf.String())
}

func TestDebugf_NilSessionWriter(t *testing.T) {
	origEnabled, origWriter := saveDebugState()
	t.Cleanup(func() {
		restoreDebugState(origEnabled, origWriter)
	})

	sessionLogWriter = nil
	debugEnabled = false

	assert.NotPanics(t, func() { Debugf("test message %d", 42) })
}

func TestDebugln_WritesToSessionLog(t *testing.T) {
	origEnabled, origWriter := saveDebugState()
	t.Cleanup(func() {
		restoreDebugState(origEnabled, origWriter)
	})

	var buf bytes.Buffer
	sessionLogWriter = &buf
	debugEnabled = false

	Debugln("state", StateSyncing)

	assert.Contains(t, buf.String(), "DEBUG: statesyncing")
}

func TestSetDebugEnabled(t *testing.T) {
	origEnabled, origWriter := saveDebugState()
	t.Cleanup(func() {
		restoreDebugState(origEnabled, origWriter)
	})

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
}
