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

package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const EnvGhAppId = "GH_APP_ID"
const EnvGhWebhookSecret = "GH_WEBHOOK_SECRET"
const EnvClaPemFile = "CLA_PEM_FILE"
const EnvClaFilePath = "CLA_FILE_PATH"
const EnvClaFileBranch = "CLA_FILE_BRANCH"
const EnvClaSignatureText = "CLA_SIGNATURE_TEXT"
const EnvClaRecheckText = "CLA_RECHECK_TEXT"
const EnvClaAllowlist = "CLA_ALLOWLIST"
const EnvClaOrgExemption = "CLA_ORG_EXEMPTION"
const EnvBlockchainWebhookUrl = "BLOCKCHAIN_WEBHOOK_URL"
const EnvBlockchainWebhookToken = "BLOCKCHAIN_WEBHOOK_TOKEN"
const EnvDatabaseUrl = "DATABASE_URL"
const EnvMigrateSourceUrl = "MIGRATE_SOURCE_URL"
const EnvClaUrl = "CLA_URL"
const EnvReactAppGithubClientId = "REACT_APP_GITHUB_CLIENT_ID"
const EnvGithubClientSecret = "GITHUB_CLIENT_SECRET"

const DefaultClaFilePath = "signatures/version1/cla.json"
const DefaultClaFileBranch = "main"
const DefaultSignatureText = "I have read the CLA Document and I hereby sign the CLA"
const DefaultRecheckText = "recheck"
const DefaultMigrateSourceUrl = "file://migrations"
const DefaultPemFile = "cla-bot.pem"

const msgMissingAppId = "missing " + EnvGhAppId + " environment variable"

// Settings is the shared configuration every collaborator is built from.
// Values come from the environment, loaded once at startup.
type Settings struct {
	AppId             int64
	WebhookSecret     string
	PemFile           string
	ClaFilePath       string
	ClaFileBranch     string
	SignatureText     string
	RecheckText       string
	AllowlistPatterns []string
	OrgExemptionOn    bool
	BlockchainUrl     string
	BlockchainToken   string
	DatabaseUrl       string
	MigrateSourceUrl  string
	ClaUrl            string
	OAuthClientId     string
	OAuthClientSecret string
}

func Load() (s Settings, err error) {
	rawAppId := os.Getenv(EnvGhAppId)
	if rawAppId == "" {
		return s, fmt.Errorf(msgMissingAppId)
	}
	s.AppId, err = strconv.ParseInt(rawAppId, 10, 64)
	if err != nil {
		return s, fmt.Errorf("bad %s value %q: %+v", EnvGhAppId, rawAppId, err)
	}

	s.WebhookSecret = os.Getenv(EnvGhWebhookSecret)
	s.PemFile = getenvDefault(EnvClaPemFile, DefaultPemFile)
	s.ClaFilePath = getenvDefault(EnvClaFilePath, DefaultClaFilePath)
	s.ClaFileBranch = getenvDefault(EnvClaFileBranch, DefaultClaFileBranch)
	s.SignatureText = getenvDefault(EnvClaSignatureText, DefaultSignatureText)
	s.RecheckText = getenvDefault(EnvClaRecheckText, DefaultRecheckText)
	s.AllowlistPatterns = splitPatterns(os.Getenv(EnvClaAllowlist))
	s.OrgExemptionOn = os.Getenv(EnvClaOrgExemption) == "true"
	s.BlockchainUrl = os.Getenv(EnvBlockchainWebhookUrl)
	s.BlockchainToken = os.Getenv(EnvBlockchainWebhookToken)
	s.DatabaseUrl = os.Getenv(EnvDatabaseUrl)
	s.MigrateSourceUrl = getenvDefault(EnvMigrateSourceUrl, DefaultMigrateSourceUrl)
	s.ClaUrl = os.Getenv(EnvClaUrl)
	s.OAuthClientId = os.Getenv(EnvReactAppGithubClientId)
	s.OAuthClientSecret = os.Getenv(EnvGithubClientSecret)
	return
}

func getenvDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func splitPatterns(raw string) (patterns []string) {
	for _, pattern := range strings.Split(raw, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return
}
