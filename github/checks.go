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

	"github.com/google/go-github/v42/github"
)

type ICheckRunner interface {
	RerunLastCheck() error
}

// PullCheckRunner re-triggers the most recent completed workflow run on the
// pull request head branch, so gating checks re-evaluate after a signature
// lands. No completed run is a no-op, not an error.
type PullCheckRunner struct {
	logger  *zap.Logger
	actions ActionsService
	owner   string
	repo    string
	branch  string
}

var _ ICheckRunner = (*PullCheckRunner)(nil)

func NewPullCheckRunner(logger *zap.Logger, actions ActionsService, owner, repo, branch string) *PullCheckRunner {
	return &PullCheckRunner{
		logger:  logger,
		actions: actions,
		owner:   owner,
		repo:    repo,
		branch:  branch,
	}
}

func (c *PullCheckRunner) RerunLastCheck() error {
	opts := &github.ListWorkflowRunsOptions{
		Branch:      c.branch,
		ListOptions: github.ListOptions{PerPage: 30},
	}
	runs, _, err := c.actions.ListRepositoryWorkflowRuns(context.Background(), c.owner, c.repo, opts)
	if err != nil {
		return err
	}

	// runs come back newest first
	for _, run := range runs.WorkflowRuns {
		if run.GetStatus() != "completed" {
			continue
		}
		c.logger.Debug("re-running workflow",
			zap.Int64("runID", run.GetID()),
			zap.String("branch", c.branch),
		)
		_, err = c.actions.RerunWorkflowByID(context.Background(), c.owner, c.repo, run.GetID())
		return err
	}

	c.logger.Debug("no completed workflow run to re-trigger",
		zap.String("branch", c.branch),
	)
	return nil
}
