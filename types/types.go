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

package types

import (
	"encoding/json"
	"time"
)

// Author is a commit contributor on a pull request. Login is empty for
// commits whose author has no platform account, in which case the commit
// email identifies the author.
type Author struct {
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Identity returns the unique name an author signs under.
func (a Author) Identity() string {
	if a.Login != "" {
		return a.Login
	}
	return a.Email
}

// AuthorStatus pairs an author with their signed state for the current run.
type AuthorStatus struct {
	Author Author
	Signed bool
}

// AuthorMap tracks signed/unsigned status for exactly the required authors of
// one run, preserving the order they were passed in.
type AuthorMap struct {
	entries []AuthorStatus
}

func NewAuthorMap(authors []Author, signedIdentities []string) *AuthorMap {
	signed := make(map[string]bool, len(signedIdentities))
	for _, identity := range signedIdentities {
		signed[identity] = true
	}
	m := &AuthorMap{}
	for _, author := range authors {
		m.entries = append(m.entries, AuthorStatus{Author: author, Signed: signed[author.Identity()]})
	}
	return m
}

func (m *AuthorMap) Entries() []AuthorStatus {
	return m.entries
}

func (m *AuthorMap) Len() int {
	return len(m.entries)
}

func (m *AuthorMap) SignedCount() (count int) {
	for _, e := range m.entries {
		if e.Signed {
			count++
		}
	}
	return
}

// AllSigned is true iff every required author has signed. An empty map is
// trivially all signed.
func (m *AuthorMap) AllSigned() bool {
	return m.SignedCount() == len(m.entries)
}

// IsUnsigned reports whether identity belongs to a required author who has
// not signed. Unknown identities are not unsigned, they are simply not
// required.
func (m *AuthorMap) IsUnsigned(identity string) bool {
	for _, e := range m.entries {
		if e.Author.Identity() == identity {
			return !e.Signed
		}
	}
	return false
}

func (m *AuthorMap) Unsigned() (authors []Author) {
	for _, e := range m.entries {
		if !e.Signed {
			authors = append(authors, e.Author)
		}
	}
	return
}

// SignedUser is one entry of the committed CLA ledger file.
type SignedUser struct {
	Name          string    `json:"name"`
	ID            int64     `json:"id,omitempty"`
	PullRequestNo int64     `json:"pullRequestNo,omitempty"`
	CommentID     int64     `json:"comment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClaFile is the in-memory form of the ledger file committed to the
// repository. An author identity appears at most once.
type ClaFile struct {
	SignedContributors []SignedUser `json:"signedContributors"`
}

func ParseClaFile(content []byte) (*ClaFile, error) {
	claFile := &ClaFile{}
	if len(content) == 0 {
		return claFile, nil
	}
	if err := json.Unmarshal(content, claFile); err != nil {
		return nil, err
	}
	return claFile, nil
}

func (f *ClaFile) Serialize() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

func (f *ClaFile) HasSigned(identity string) bool {
	for _, u := range f.SignedContributors {
		if u.Name == identity {
			return true
		}
	}
	return false
}

func (f *ClaFile) SignedIdentities() (identities []string) {
	for _, u := range f.SignedContributors {
		identities = append(identities, u.Name)
	}
	return
}

// AddSignatures appends the given users to the ledger and returns only the
// ones that were newly added, so callers can tell a fresh signature from a
// repeated confirmation.
func (f *ClaFile) AddSignatures(users []SignedUser) (added []SignedUser) {
	for _, u := range users {
		if f.HasSigned(u.Name) {
			continue
		}
		f.SignedContributors = append(f.SignedContributors, u)
		added = append(added, u)
	}
	return
}

// EvaluationInfo carries the per-event parameters a CLA run needs.
type EvaluationInfo struct {
	Action        string
	RepoOwner     string
	RepoName      string
	PRNumber      int64
	Sha           string
	HeadBranch    string
	AppId         int64
	InstallId     int64
	IsPullRequest bool
}

// SignatureEvent is one row of the optional signature audit trail.
type SignatureEvent struct {
	ID        string
	Login     string
	RepoOwner string
	RepoName  string
	PRNumber  int64
	SignedAt  time.Time
}
