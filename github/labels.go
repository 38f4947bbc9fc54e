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
	"net/http"

	"go.uber.org/zap"

	"github.com/google/go-github/v42/github"
)

const labelNameCLANotSigned string = ":monocle_face: cla not signed"
const labelNameCLASigned string = ":heart_eyes: cla signed"

func createRepoLabel(logger *zap.Logger,
	issuesService IssuesService,
	owner, repo, name, color, description string,
	pullRequestID int64) error {
	logger.Debug("add or create label", zap.String("name", name))

	lbl, err := _createRepoLabelIfNotExists(logger, issuesService, owner, repo, name, color, description)
	if err != nil {
		return err
	}

	_, err = _addLabelToIssueIfNotExists(logger, issuesService, owner, repo, pullRequestID, lbl.GetName())
	if err != nil {
		return err
	}

	return nil
}

func _createRepoLabelIfNotExists(logger *zap.Logger,
	issuesService IssuesService,
	owner, repo, name, color, description string) (desiredLabel *github.Label, err error) {
	logger.Debug("maybe create label", zap.String("name", name))

	desiredLabel, res, err := issuesService.GetLabel(context.Background(), owner, repo, name)
	if res != nil && res.StatusCode == http.StatusNotFound {
		strName := name
		strColor := color
		strDescription := description
		newLabel := &github.Label{Name: &strName, Color: &strColor, Description: &strDescription}
		logger.Debug("label doesn't exist, so create it", zap.Any("newLabel", newLabel))
		desiredLabel, _, err = issuesService.CreateLabel(context.Background(), owner, repo, newLabel)

		return
	}
	if err != nil {
		return
	}
	if desiredLabel != nil {
		logger.Debug("found existing label", zap.Any("desiredLabel", desiredLabel))
		return
	}

	return
}

func _addLabelToIssueIfNotExists(logger *zap.Logger, issuesService IssuesService, owner, repo string, issueNumber int64, labelName string) (desiredLabel *github.Label, err error) {
	// check if label is already added to issue
	opts := github.ListOptions{}
	issueLabels, _, err := issuesService.ListLabelsByIssue(context.Background(), owner, repo, int(issueNumber), &opts)
	if err != nil {
		return
	}
	for _, existingLabel := range issueLabels {
		if *existingLabel.Name == labelName {
			logger.Debug("found label on issue, getting out of here", zap.String("labelName", labelName))
			// label already exists on this issue
			desiredLabel = existingLabel
			return
		}
	}

	// didn't find the label on this issue, so add the label to this issue
	// note: this does not remove existing labels (any label not in our "add" array)
	logger.Debug("add label to issue",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int64("issueNumber", issueNumber),
		zap.String("labelName", labelName),
	)
	_, _, err = issuesService.AddLabelsToIssue(
		context.Background(),
		owner,
		repo,
		int(issueNumber),
		[]string{labelName},
	)
	return
}

func _removeLabelFromIssueIfApplied(logger *zap.Logger, issuesService IssuesService, owner string, repo string, pullRequestID int64, labelToRemove string) (err error) {
	var resp *github.Response
	resp, err = issuesService.RemoveLabelForIssue(context.Background(), owner, repo, int(pullRequestID), labelToRemove)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		// the label was not applied, so move along as if no error occurred
		err = nil
	} else {
		logger.Debug("removed old label",
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int64("pullRequestID", pullRequestID),
			zap.String("labelToRemove", labelToRemove),
		)
	}
	return
}
