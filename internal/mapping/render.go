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

package mapping

import (
	"strings"

	"github.com/knakk/rdf"
)

// Render writes the triples as N-Triples statements, one per line, ready to be
// embedded in an INSERT DATA block.
func Render(triples []rdf.Triple) string {
	var sb strings.Builder
	for _, t := range triples {
		sb.WriteString(t.Subj.Serialize(rdf.NTriples))
		sb.WriteByte(' ')
		sb.WriteString(t.Pred.Serialize(rdf.NTriples))
		sb.WriteByte(' ')
		sb.WriteString(t.Obj.Serialize(rdf.NTriples))
		sb.WriteString(" .\n")
	}
	return sb.String()
}
