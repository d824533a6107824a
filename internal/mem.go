// Copyright 2024 MIMIRO AS
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

package internal

import (
	"os"
	"strconv"
	"strings"
)

type Memory struct {
	Current int64
	Max     int64
}

// ReadMemoryStats reads the memory stats from cgroup. Only works in docker, where docker sets cgroup values.
// Other environments return empty values.
func ReadMemoryStats() Memory {
	b, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return Memory{}
	}
	path := strings.TrimSpace(strings.ReplaceAll(string(b), "0::", "/sys/fs/cgroup"))
	maxM, ok := readCgroupValue(path+"/memory.max", "/sys/fs/cgroup/memory/memory.limit_in_bytes")
	if !ok {
		return Memory{}
	}
	curM, ok := readCgroupValue(path+"/memory.current", "/sys/fs/cgroup/memory/memory.usage_in_bytes")
	if !ok {
		return Memory{}
	}
	return Memory{
		Current: curM,
		Max:     maxM,
	}
}

// readCgroupValue reads a cgroup v2 file, falling back to the v1 location. "max"
// means no limit and is reported as not available.
func readCgroupValue(v2, v1 string) (int64, bool) {
	b, err := os.ReadFile(v2)
	if err != nil {
		b, err = os.ReadFile(v1)
		if err != nil {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
