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
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/clacommunity/cla-bot/allowlist"
	"github.com/clacommunity/cla-bot/blockchain"
	"github.com/clacommunity/cla-bot/db"
	"github.com/clacommunity/cla-bot/settings"
	"github.com/clacommunity/cla-bot/types"
	"github.com/google/go-github/v42/github"
	webhook "github.com/go-playground/webhooks/v6/github"
)

const actionClosed = "closed"
const actionIssueComment = "issue_comment"

const statusDescPending = "cla-bot is checking signatures"
const statusDescFailure = "One or more contributors need to sign the CLA"
const statusDescSuccess = "All contributors have signed the CLA"

// ClaRunner composes the collaborators for one run. NewClaRunner builds each
// collaborator from the shared settings; tests assemble the struct directly
// with mocks instead.
type ClaRunner struct {
	Logger    *zap.Logger
	Settings  settings.Settings
	Allowlist *allowlist.Allowlist
	Client    GHClient
	BotName   string
	Ledger    IClaLedger
	Authors   IPullAuthors
	Comments  IPullComments
	Members   IOrgMembers
	Checks    ICheckRunner
	Poster    blockchain.Poster
	Audit     db.IAuditDB
}

func NewClaRunner(logger *zap.Logger, s settings.Settings, audit db.IAuditDB, eval *types.EvaluationInfo) (*ClaRunner, error) {
	logger.Debug("start authenticating with GitHub",
		zap.Any("eval", eval),
	)

	// Getting a JWT Apps Transport to ask GitHub about stuff that needs a JWT for asking, such as installInfo
	atr, err := ghinstallation.NewAppsTransportKeyFromFile(http.DefaultTransport, eval.AppId, s.PemFile)
	if err != nil {
		logger.Error("failed to get JWT key",
			zap.Int64("appId", eval.AppId),
			zap.Error(err),
		)
		return nil, err
	}
	ghJWTClient := GHJWTImpl.NewJWTClient(&http.Client{Transport: atr}, eval.InstallId)
	installInfo, err := ghJWTClient.GetInstallInfo()
	if err != nil {
		logger.Error("failed to get install info",
			zap.Int64("appId", eval.AppId),
			zap.Error(err),
		)
		return nil, err
	}
	botName := installInfo.GetAppSlug()
	if botName == "" {
		// older installation records omit app_slug, ask the app endpoint instead
		app, errApp := ghJWTClient.Get()
		if errApp != nil {
			logger.Error("failed to get app info",
				zap.Int64("appId", eval.AppId),
				zap.Error(errApp),
			)
			return nil, errApp
		}
		botName = app.GetSlug()
	}

	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, eval.AppId, eval.InstallId, s.PemFile)
	if err != nil {
		return nil, err
	}

	client := GHImpl.NewClient(&http.Client{Transport: itr})

	return &ClaRunner{
		Logger:    logger,
		Settings:  s,
		Allowlist: allowlist.New(s.AllowlistPatterns),
		Client:    client,
		BotName:   botName,
		Ledger:    NewClaLedger(logger, client.Repositories, eval.RepoOwner, eval.RepoName, s.ClaFilePath, s.ClaFileBranch),
		Authors:   NewPullAuthors(logger, client.PullRequests, eval.RepoOwner, eval.RepoName, int(eval.PRNumber)),
		Comments:  NewPullComments(logger, client.Issues, eval.RepoOwner, eval.RepoName, int(eval.PRNumber), s.SignatureText, botName, s.ClaUrl),
		Members:   NewOrgMembers(logger, client.Organizations, eval.RepoOwner, s.OrgExemptionOn),
		Checks:    NewPullCheckRunner(logger, client.Actions, eval.RepoOwner, eval.RepoName, eval.HeadBranch),
		Poster:    blockchain.New(logger, s.BlockchainUrl, s.BlockchainToken),
		Audit:     audit,
	}, nil
}

// Execute runs the decision flow for one event. It returns true when the
// pull request may proceed and false when unsigned required authors remain,
// in which case a failing commit status has already been raised.
func (r *ClaRunner) Execute(eval *types.EvaluationInfo) (bool, error) {
	if eval.Action == actionClosed {
		// closing is terminal; locking preserves the comment signature history
		r.lockPullRequest(eval)
		return true, nil
	}
	if eval.Action == actionIssueComment && !eval.IsPullRequest {
		return true, nil
	}

	if err := r.resolveHead(eval); err != nil {
		return false, err
	}

	if err := createRepoStatus(r.Client.Repositories, eval.RepoOwner, eval.RepoName, eval.Sha, "pending", statusDescPending, r.BotName); err != nil {
		return false, err
	}

	var authors []types.Author
	var members map[string]bool
	g := new(errgroup.Group)
	g.Go(func() (err error) {
		authors, err = r.Authors.GetAuthors()
		return
	})
	g.Go(func() (err error) {
		members, err = r.Members.GetMembers()
		return
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	var required []types.Author
	for _, author := range authors {
		if r.Allowlist.IsUserAllowlisted(author) {
			continue
		}
		if author.Login != "" && members[author.Login] {
			continue
		}
		required = append(required, author)
	}

	if len(required) == 0 {
		r.Logger.Debug("no required authors, nothing to enforce",
			zap.Int64("prNumber", eval.PRNumber),
		)
		return true, createRepoStatus(r.Client.Repositories, eval.RepoOwner, eval.RepoName, eval.Sha, "success", statusDescSuccess, r.BotName)
	}

	claFile, err := r.Ledger.GetClaFile()
	if err != nil {
		return false, err
	}
	authorMap := types.NewAuthorMap(required, claFile.SignedIdentities())

	newSignatures, err := r.Comments.GetNewSignatures(authorMap)
	if err != nil {
		return false, err
	}
	added := claFile.AddSignatures(newSignatures)

	if len(added) > 0 {
		// recompute so the status comment reflects the just-added signatures
		authorMap = types.NewAuthorMap(required, claFile.SignedIdentities())

		wb := new(errgroup.Group)
		wb.Go(func() error {
			return r.Ledger.CommitClaFile(commitMessageFor(added, eval))
		})
		wb.Go(func() error {
			// notarization is best-effort and must not abort the batch
			if err := r.Poster.PostToBlockchain(added); err != nil {
				r.Logger.Warn("blockchain notarization failed",
					zap.Error(err),
				)
			}
			return nil
		})
		wb.Go(func() error {
			return r.Comments.SetClaComment(authorMap)
		})
		wb.Go(func() error {
			return r.Checks.RerunLastCheck()
		})
		if err = wb.Wait(); err != nil {
			return false, err
		}

		r.recordAuditEvents(eval, added)
	} else {
		if err = r.Comments.SetClaComment(authorMap); err != nil {
			return false, err
		}
	}

	allSigned := authorMap.AllSigned()
	if allSigned {
		if err = createRepoLabel(r.Logger, r.Client.Issues, eval.RepoOwner, eval.RepoName, labelNameCLASigned, "66CC00", "The CLA is signed", eval.PRNumber); err != nil {
			return false, err
		}
		// handle case where PR was previously open and some authors had NOT signed cla - meaning the old "not signed" label is applied
		if err = _removeLabelFromIssueIfApplied(r.Logger, r.Client.Issues, eval.RepoOwner, eval.RepoName, eval.PRNumber, labelNameCLANotSigned); err != nil {
			return false, err
		}
		if err = createRepoStatus(r.Client.Repositories, eval.RepoOwner, eval.RepoName, eval.Sha, "success", statusDescSuccess, r.BotName); err != nil {
			return false, err
		}
	} else {
		if err = createRepoLabel(r.Logger, r.Client.Issues, eval.RepoOwner, eval.RepoName, labelNameCLANotSigned, "ff3333", "The CLA needs to be signed", eval.PRNumber); err != nil {
			return false, err
		}
		if err = _removeLabelFromIssueIfApplied(r.Logger, r.Client.Issues, eval.RepoOwner, eval.RepoName, eval.PRNumber, labelNameCLASigned); err != nil {
			return false, err
		}
		if err = createRepoStatus(r.Client.Repositories, eval.RepoOwner, eval.RepoName, eval.Sha, "failure", statusDescFailure, r.BotName); err != nil {
			return false, err
		}
	}

	return allSigned, nil
}

// resolveHead fills in the head SHA and branch for comment-triggered runs
// where the webhook payload carries neither.
func (r *ClaRunner) resolveHead(eval *types.EvaluationInfo) error {
	if eval.Sha != "" && eval.HeadBranch != "" {
		return nil
	}
	pr, _, err := r.Client.PullRequests.Get(context.Background(), eval.RepoOwner, eval.RepoName, int(eval.PRNumber))
	if err != nil {
		return err
	}
	eval.Sha = pr.GetHead().GetSHA()
	eval.HeadBranch = pr.GetHead().GetRef()
	if c, ok := r.Checks.(*PullCheckRunner); ok {
		c.branch = eval.HeadBranch
	}
	return nil
}

func (r *ClaRunner) lockPullRequest(eval *types.EvaluationInfo) {
	reason := "resolved"
	_, err := r.Client.Issues.Lock(context.Background(), eval.RepoOwner, eval.RepoName, int(eval.PRNumber), &github.LockIssueOptions{LockReason: reason})
	if err != nil {
		r.Logger.Warn("could not lock pull request",
			zap.Int64("prNumber", eval.PRNumber),
			zap.Error(err),
		)
	}
}

func (r *ClaRunner) recordAuditEvents(eval *types.EvaluationInfo, added []types.SignedUser) {
	if r.Audit == nil {
		return
	}
	for _, u := range added {
		signedAt := u.CreatedAt
		if signedAt.IsZero() {
			signedAt = time.Now()
		}
		err := r.Audit.InsertSignatureEvent(&types.SignatureEvent{
			Login:     u.Name,
			RepoOwner: eval.RepoOwner,
			RepoName:  eval.RepoName,
			PRNumber:  eval.PRNumber,
			SignedAt:  signedAt,
		})
		if err != nil {
			r.Logger.Warn("could not record signature audit event",
				zap.String("login", u.Name),
				zap.Error(err),
			)
		}
	}
}

func commitMessageFor(added []types.SignedUser, eval *types.EvaluationInfo) string {
	var names []string
	for _, u := range added {
		names = append(names, "@"+u.Name)
	}
	return fmt.Sprintf("%s has signed the CLA in %s/%s#%d", strings.Join(names, ", "), eval.RepoOwner, eval.RepoName, eval.PRNumber)
}

// HandlePullRequest maps a pull_request webhook payload onto a CLA run.
func HandlePullRequest(logger *zap.Logger, s settings.Settings, audit db.IAuditDB, payload webhook.PullRequestPayload) (bool, error) {
	switch payload.Action {
	case "opened", "reopened", "synchronize", actionClosed:
	default:
		return true, nil
	}

	eval := types.EvaluationInfo{
		Action:        payload.Action,
		RepoOwner:     payload.Repository.Owner.Login,
		RepoName:      payload.Repository.Name,
		PRNumber:      payload.Number,
		Sha:           payload.PullRequest.Head.Sha,
		HeadBranch:    payload.PullRequest.Head.Ref,
		AppId:         s.AppId,
		InstallId:     payload.Installation.ID,
		IsPullRequest: true,
	}

	runner, err := NewClaRunner(logger, s, audit, &eval)
	if err != nil {
		return false, err
	}
	return runner.Execute(&eval)
}

// HandleIssueComment maps an issue_comment webhook payload onto a CLA run.
// Only newly created comments carrying the signature or recheck text trigger
// anything; comments on plain issues are ignored without touching the API.
func HandleIssueComment(logger *zap.Logger, s settings.Settings, audit db.IAuditDB, payload webhook.IssueCommentPayload) (bool, error) {
	if payload.Action != "created" {
		return true, nil
	}
	body := strings.TrimSpace(payload.Comment.Body)
	if body != s.SignatureText && body != s.RecheckText {
		return true, nil
	}

	eval := types.EvaluationInfo{
		Action:        actionIssueComment,
		RepoOwner:     payload.Repository.Owner.Login,
		RepoName:      payload.Repository.Name,
		PRNumber:      payload.Issue.Number,
		AppId:         s.AppId,
		InstallId:     payload.Installation.ID,
		IsPullRequest: strings.Contains(payload.Issue.HTMLURL, "/pull/"),
	}
	if !eval.IsPullRequest {
		logger.Debug("ignoring comment on a non-PR issue",
			zap.Int64("issueNumber", eval.PRNumber),
		)
		return true, nil
	}

	runner, err := NewClaRunner(logger, s, audit, &eval)
	if err != nil {
		return false, err
	}
	return runner.Execute(&eval)
}
