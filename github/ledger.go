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

package github

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/clacommunity/cla-bot/types"
	"github.com/google/go-github/v42/github"
)

// IClaLedger fetches and commits the CLA ledger file persisted in the
// repository.
type IClaLedger interface {
	GetClaFile() (*types.ClaFile, error)
	CommitClaFile(message string) error
}

// ClaLedger keeps the fetched file SHA so a later commit updates the exact
// blob it read. A missing ledger file is not an error: it parses to an empty
// ClaFile and the commit then creates the file.
type ClaLedger struct {
	logger       *zap.Logger
	repositories RepositoriesService
	owner        string
	repo         string
	path         string
	branch       string
	claFile      *types.ClaFile
	fileSHA      string
}

var _ IClaLedger = (*ClaLedger)(nil)

func NewClaLedger(logger *zap.Logger, repositories RepositoriesService, owner, repo, path, branch string) *ClaLedger {
	return &ClaLedger{
		logger:       logger,
		repositories: repositories,
		owner:        owner,
		repo:         repo,
		path:         path,
		branch:       branch,
	}
}

func (l *ClaLedger) GetClaFile() (claFile *types.ClaFile, err error) {
	opts := &github.RepositoryContentGetOptions{Ref: l.branch}
	fileContent, _, resp, err := l.repositories.GetContents(context.Background(), l.owner, l.repo, l.path, opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		l.logger.Debug("no ledger file yet, starting empty",
			zap.String("path", l.path),
		)
		l.claFile = &types.ClaFile{}
		l.fileSHA = ""
		return l.claFile, nil
	}
	if err != nil {
		return
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return
	}

	claFile, err = types.ParseClaFile([]byte(content))
	if err != nil {
		return
	}

	l.claFile = claFile
	l.fileSHA = fileContent.GetSHA()
	l.logger.Debug("loaded ledger file",
		zap.String("path", l.path),
		zap.String("sha", l.fileSHA),
		zap.Int("signed", len(claFile.SignedContributors)),
	)
	return
}

const msgNoLedgerLoaded = "commit requested before the ledger file was loaded"

func (l *ClaLedger) CommitClaFile(message string) error {
	if l.claFile == nil {
		return fmt.Errorf(msgNoLedgerLoaded)
	}

	content, err := l.claFile.Serialize()
	if err != nil {
		return err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: &message,
		Content: content,
		Branch:  &l.branch,
	}

	if l.fileSHA == "" {
		_, _, err = l.repositories.CreateFile(context.Background(), l.owner, l.repo, l.path, opts)
	} else {
		opts.SHA = &l.fileSHA
		_, _, err = l.repositories.UpdateFile(context.Background(), l.owner, l.repo, l.path, opts)
	}
	return err
}
