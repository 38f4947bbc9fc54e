//
// Copyright (c) 2022-present CLA bot contributors
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
//

//go:build go1.16

package allowlist

import (
	"strings"

	"github.com/clacommunity/cla-bot/types"
)

// Allowlist holds the configured identity patterns that exempt an author
// from signing. Patterns support the `*` wildcard, e.g. `*-bot` or
// `dependabot[bot]`, and are matched against both login and email.
type Allowlist struct {
	patterns []string
}

func New(patterns []string) *Allowlist {
	return &Allowlist{patterns: patterns}
}

func (a *Allowlist) IsUserAllowlisted(author types.Author) bool {
	for _, pattern := range a.patterns {
		if matchPattern(pattern, author.Login) || matchPattern(pattern, author.Email) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, value string) bool {
	if value == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, parts[len(parts)-1])
}
