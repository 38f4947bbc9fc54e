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
	"strings"

	"go.uber.org/zap"

	"github.com/clacommunity/cla-bot/types"
	"github.com/google/go-github/v42/github"
)

// claCommentMarker tags the single status comment this bot maintains per
// pull request, so later runs edit it instead of posting a new one.
const claCommentMarker = "<!-- cla-bot: signature status -->"

type IPullComments interface {
	GetNewSignatures(authorMap *types.AuthorMap) ([]types.SignedUser, error)
	SetClaComment(authorMap *types.AuthorMap) error
}

// PullComments scans one pull request's comment thread for signature
// confirmations and maintains the status comment.
type PullComments struct {
	logger        *zap.Logger
	issues        IssuesService
	owner         string
	repo          string
	number        int
	signatureText string
	botName       string
	claUrl        string
}

var _ IPullComments = (*PullComments)(nil)

func NewPullComments(logger *zap.Logger, issues IssuesService, owner, repo string, number int, signatureText, botName, claUrl string) *PullComments {
	return &PullComments{
		logger:        logger,
		issues:        issues,
		owner:         owner,
		repo:          repo,
		number:        number,
		signatureText: signatureText,
		botName:       botName,
		claUrl:        claUrl,
	}
}

// GetNewSignatures returns the unsigned required authors who posted the
// confirmation text, each at most once. Comments from signed authors or
// non-required users are ignored.
func (p *PullComments) GetNewSignatures(authorMap *types.AuthorMap) (signatures []types.SignedUser, err error) {
	collected := map[string]bool{}
	opts := &github.IssueListCommentsOptions{}

	for {
		var comments []*github.IssueComment
		var resp *github.Response
		comments, resp, err = p.issues.ListComments(context.Background(), p.owner, p.repo, p.number, opts)
		if err != nil {
			return
		}

		for _, comment := range comments {
			if strings.TrimSpace(comment.GetBody()) != p.signatureText {
				continue
			}
			login := comment.GetUser().GetLogin()
			if login == "" || collected[login] || !authorMap.IsUnsigned(login) {
				continue
			}
			collected[login] = true
			signatures = append(signatures, types.SignedUser{
				Name:          login,
				ID:            comment.GetUser().GetID(),
				PullRequestNo: int64(p.number),
				CommentID:     comment.GetID(),
				CreatedAt:     comment.GetCreatedAt(),
			})
			p.logger.Debug("found signature confirmation",
				zap.String("login", login),
				zap.Int64("commentID", comment.GetID()),
			)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return
}

// SetClaComment creates the status comment on first use and edits it in
// place afterwards, located by the stable claCommentMarker.
func (p *PullComments) SetClaComment(authorMap *types.AuthorMap) error {
	body := p.buildCommentBody(authorMap)

	existing, err := p.findClaComment()
	if err != nil {
		return err
	}

	if existing == nil {
		comment := &github.IssueComment{Body: &body}
		_, _, err = p.issues.CreateComment(context.Background(), p.owner, p.repo, p.number, comment)
		return err
	}

	if existing.GetBody() == body {
		// nothing changed since the last run
		return nil
	}

	comment := &github.IssueComment{Body: &body}
	_, _, err = p.issues.EditComment(context.Background(), p.owner, p.repo, existing.GetID(), comment)
	return err
}

func (p *PullComments) findClaComment() (found *github.IssueComment, err error) {
	opts := &github.IssueListCommentsOptions{}
	for {
		var comments []*github.IssueComment
		var resp *github.Response
		comments, resp, err = p.issues.ListComments(context.Background(), p.owner, p.repo, p.number, opts)
		if err != nil {
			return
		}
		for _, comment := range comments {
			if strings.Contains(comment.GetBody(), claCommentMarker) {
				found = comment
				return
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return
		}
		opts.Page = resp.NextPage
	}
}

func (p *PullComments) buildCommentBody(authorMap *types.AuthorMap) string {
	var b strings.Builder
	b.WriteString(claCommentMarker)
	b.WriteString("\n")

	if authorMap.AllSigned() {
		fmt.Fprintf(&b, "**%s** All contributors have signed the CLA. :white_check_mark:\n", p.botName)
		return b.String()
	}

	fmt.Fprintf(&b, "**%s** Thank you for your contribution. Before we can merge this, the following contributors need to [sign the Contributor License Agreement](%s).\n\n", p.botName, p.claUrl)
	fmt.Fprintf(&b, "Reply with the following text to sign:\n\n> %s\n\n", p.signatureText)
	for _, e := range authorMap.Entries() {
		if e.Signed {
			fmt.Fprintf(&b, "- [x] @%s\n", e.Author.Identity())
		} else {
			fmt.Fprintf(&b, "- [ ] @%s\n", e.Author.Identity())
		}
	}
	fmt.Fprintf(&b, "\n**%d** out of **%d** contributors have signed the CLA.\n", authorMap.SignedCount(), authorMap.Len())
	return b.String()
}
