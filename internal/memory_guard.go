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
	"fmt"

	"github.com/labstack/echo/v4"
)

var defaultMemoryHeadroom = 500 * 1000 * 1000

// MemoryGuard rejects requests when the container is closer to its memory limit
// than the configured headroom. Outside a container no stats are available and
// every request is let through.
func MemoryGuard(headroomMB int, stats func() Memory) echo.MiddlewareFunc {
	minHeadRoom := defaultMemoryHeadroom
	if headroomMB > 0 {
		minHeadRoom = headroomMB * 1000 * 1000
	}
	log := Logger("memory-guard")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			mem := stats()
			if mem.Max > 0 {
				headroom := int(mem.Max - mem.Current)
				log.Debug().Msg(fmt.Sprintf("MemoryGuard: headroom: %v (min: %v)", headroom, minHeadRoom))
				if headroom < minHeadRoom {
					log.Warn().Msg("MemoryGuard: headroom too low, rejecting request")
					return ToHttpError(ErrHeadroom)
				}
			} else {
				log.Debug().Msg("MemoryGuard: no memory stats available")
			}
			return next(c)
		}
	}
}
