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

	"go.uber.org/zap"

	"github.com/clacommunity/cla-bot/types"
	"github.com/google/go-github/v42/github"
)

type IPullAuthors interface {
	GetAuthors() ([]types.Author, error)
}

// PullAuthors lists the deduplicated commit authors of one pull request.
type PullAuthors struct {
	logger       *zap.Logger
	pullRequests PullRequestsService
	owner        string
	repo         string
	number       int
}

var _ IPullAuthors = (*PullAuthors)(nil)

func NewPullAuthors(logger *zap.Logger, pullRequests PullRequestsService, owner, repo string, number int) *PullAuthors {
	return &PullAuthors{
		logger:       logger,
		pullRequests: pullRequests,
		owner:        owner,
		repo:         repo,
		number:       number,
	}
}

func (p *PullAuthors) GetAuthors() (authors []types.Author, err error) {
	seen := map[string]bool{}
	opts := &github.ListOptions{}

	for {
		var commits []*github.RepositoryCommit
		var resp *github.Response
		commits, resp, err = p.pullRequests.ListCommits(context.Background(), p.owner, p.repo, p.number, opts)
		if err != nil {
			return
		}

		for _, v := range commits {
			// It is important to use GetAuthor() instead of v.Commit.GetCommitter() because the committer can be the GH webflow user, whereas the author is
			// the canonical author of the commit
			author := types.Author{}
			if ghUser := v.GetAuthor(); ghUser != nil {
				author.Login = ghUser.GetLogin()
				author.Email = ghUser.GetEmail()
			}
			if commitAuthor := v.Commit.GetAuthor(); commitAuthor != nil {
				author.Name = commitAuthor.GetName()
				if author.Email == "" {
					author.Email = commitAuthor.GetEmail()
				}
			}

			identity := author.Identity()
			if identity == "" {
				p.logger.Warn("commit has no resolvable author",
					zap.String("sha", v.GetSHA()),
				)
				continue
			}
			if seen[identity] {
				continue
			}
			seen[identity] = true
			authors = append(authors, author)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	p.logger.Debug("listed pull request authors",
		zap.Int("prNumber", p.number),
		zap.Int("count", len(authors)),
	)
	return
}
