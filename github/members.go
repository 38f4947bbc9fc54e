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

type IOrgMembers interface {
	GetMembers() (map[string]bool, error)
}

// OrgMembers lists the members of the repository owner organization, used
// for the organization-member signing exemption. Disabled means an empty
// member set, not an API call.
type OrgMembers struct {
	logger        *zap.Logger
	organizations OrganizationsService
	org           string
	enabled       bool
}

var _ IOrgMembers = (*OrgMembers)(nil)

func NewOrgMembers(logger *zap.Logger, organizations OrganizationsService, org string, enabled bool) *OrgMembers {
	return &OrgMembers{
		logger:        logger,
		organizations: organizations,
		org:           org,
		enabled:       enabled,
	}
}

func (o *OrgMembers) GetMembers() (members map[string]bool, err error) {
	members = map[string]bool{}
	if !o.enabled {
		return
	}

	opts := &github.ListMembersOptions{}
	for {
		var users []*github.User
		var resp *github.Response
		users, resp, err = o.organizations.ListMembers(context.Background(), o.org, opts)
		if err != nil {
			return
		}
		for _, user := range users {
			members[user.GetLogin()] = true
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	o.logger.Debug("listed organization members",
		zap.String("org", o.org),
		zap.Int("count", len(members)),
	)
	return
}
