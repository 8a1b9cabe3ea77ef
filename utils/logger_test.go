/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLogOutput(t *testing.T) {
	t.Cleanup(func() { ConfigureLogOutput(os.Stdout) })
	existing := NewLogger("OUTPUT_EXISTING")
	existing.SetLevel(logrus.InfoLevel)

	var buf bytes.Buffer
	ConfigureLogOutput(&buf)
	existing.Info("from existing logger")

	later := NewLogger("OUTPUT_LATER")
	later.SetLevel(logrus.InfoLevel)
	later.Info("from later logger")

	assert.Contains(t, buf.String(), "from existing logger")
	assert.Contains(t, buf.String(), "from later logger")
}

func TestConfigureLogOutputNilDiscards(t *testing.T) {
	t.Cleanup(func() { ConfigureLogOutput(os.Stdout) })
	lg := NewLogger("OUTPUT_DISCARD")
	ConfigureLogOutput(nil)
	assert.NotPanics(t, func() { lg.Info("dropped") })
}

func TestElapsed(t *testing.T) {
	assert.Equal(t, "1.50ms", Elapsed(1500*time.Microsecond))
	assert.Equal(t, "0.00ms", Elapsed(0))
	assert.Equal(t, "2000.00ms", Elapsed(2*time.Second))
}
