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

package main

import (
	"database/sql"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	webhook "github.com/go-playground/webhooks/v6/github"

	"github.com/clacommunity/cla-bot/db"
	ourGithub "github.com/clacommunity/cla-bot/github"
	"github.com/clacommunity/cla-bot/oauth"
	"github.com/clacommunity/cla-bot/settings"
)

const pathWebhook string = "/webhook-integration"
const pathClaText string = "/cla-text"
const pathOAuthCallback string = "/oauth-callback"
const pathSignatures string = "/signatures"
const buildLocation string = "build"

var logger *zap.Logger
var appSettings settings.Settings
var auditDB db.IAuditDB
var oauthImpl oauth.OAuthInterface

func main() {
	e := echo.New()
	addr := ":4200"

	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		e.Logger.Fatal(err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer logger.Sync()

	if err = godotenv.Load(".env"); err != nil {
		logger.Info("could not load .env file, using environment as-is",
			zap.Error(err),
		)
	}

	appSettings, err = settings.Load()
	if err != nil {
		logger.Fatal("could not load settings", zap.Error(err))
	}

	if appSettings.DatabaseUrl != "" {
		database, errOpen := sql.Open("postgres", appSettings.DatabaseUrl)
		if errOpen != nil {
			logger.Fatal("could not open audit database", zap.Error(errOpen))
		}
		auditImpl := db.New(database, logger)
		if err = auditImpl.MigrateDB(appSettings.MigrateSourceUrl); err != nil {
			logger.Fatal("could not migrate audit database", zap.Error(err))
		}
		auditDB = auditImpl
	} else {
		logger.Info("no DATABASE_URL configured, signature audit trail is disabled")
	}

	oauthImpl = oauth.CreateOAuth(appSettings.OAuthClientId, appSettings.OAuthClientSecret)

	e.Use(middleware.CORS())

	e.POST(pathWebhook, processWebhook)

	e.GET(pathClaText, retrieveCLAText)

	e.GET(pathOAuthCallback, processGitHubOAuth)

	e.GET(pathSignatures+"/:login", retrieveSignatureEvents)

	e.Static("/", buildLocation)

	e.Logger.Fatal(e.Start(addr))
}

const msgUnhandledGitHubEvent = "skipping unhandled GitHub event"

func processWebhook(c echo.Context) (err error) {
	var hook *webhook.Webhook
	if appSettings.WebhookSecret != "" {
		hook, err = webhook.New(webhook.Options.Secret(appSettings.WebhookSecret))
	} else {
		hook, err = webhook.New()
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	payload, err := hook.Parse(c.Request(), webhook.PullRequestEvent, webhook.IssueCommentEvent)
	if err != nil {
		if err == webhook.ErrEventNotFound {
			logger.Debug(msgUnhandledGitHubEvent)
			return c.String(http.StatusOK, msgUnhandledGitHubEvent)
		}
		logger.Error("could not parse webhook payload", zap.Error(err))
		return c.String(http.StatusBadRequest, err.Error())
	}

	switch payload := payload.(type) {
	case webhook.PullRequestPayload:
		logger.Debug("processing pull request event",
			zap.String("action", payload.Action),
			zap.Int64("prNumber", payload.Number),
		)
		passed, errHandle := ourGithub.HandlePullRequest(logger, appSettings, auditDB, payload)
		if errHandle != nil {
			logger.Error("pull request evaluation failed", zap.Error(errHandle))
			return c.String(http.StatusInternalServerError, errHandle.Error())
		}
		return c.String(http.StatusAccepted, fmt.Sprintf("all contributors signed: %t", passed))
	case webhook.IssueCommentPayload:
		logger.Debug("processing issue comment event",
			zap.String("action", payload.Action),
			zap.Int64("issueNumber", payload.Issue.Number),
		)
		passed, errHandle := ourGithub.HandleIssueComment(logger, appSettings, auditDB, payload)
		if errHandle != nil {
			logger.Error("issue comment evaluation failed", zap.Error(errHandle))
			return c.String(http.StatusInternalServerError, errHandle.Error())
		}
		return c.String(http.StatusAccepted, fmt.Sprintf("all contributors signed: %t", passed))
	default:
		return c.String(http.StatusOK, msgUnhandledGitHubEvent)
	}
}

const msgAuditDisabled = "signature audit trail is not configured"

// retrieveSignatureEvents reports the audit rows for one login. The committed
// ledger file stays authoritative; this is a bookkeeping lookup.
func retrieveSignatureEvents(c echo.Context) error {
	if auditDB == nil {
		return c.String(http.StatusServiceUnavailable, msgAuditDisabled)
	}

	login := c.Param("login")
	events, err := auditDB.GetSignatureEventsForLogin(login)
	if err != nil {
		logger.Error("could not fetch signature events",
			zap.String("login", login),
			zap.Error(err),
		)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, events)
}

func processGitHubOAuth(c echo.Context) (err error) {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if state == "" {
		return
	}

	user, err := oauthImpl.GetOAuthUser(logger, code)
	if err != nil {
		return
	}

	return c.JSON(http.StatusOK, user)
}

const msgMissingClaUrl = "missing " + settings.EnvClaUrl + " environment variable"

// claTextCache holds the CLA body after the first successful fetch. The text
// only changes with a deploy, so one fetch per process is enough.
var claTextCache string

func retrieveCLAText(c echo.Context) (err error) {
	if claTextCache != "" {
		return c.String(http.StatusOK, claTextCache)
	}

	claURL := appSettings.ClaUrl
	if claURL == "" {
		return fmt.Errorf(msgMissingClaUrl)
	}

	client := http.Client{}

	resp, err := client.Get(claURL)
	if err != nil {
		logger.Error("could not fetch cla text", zap.Error(err))
		return
	}

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected cla text response code: %d", resp.StatusCode)
		logger.Error("could not fetch cla text", zap.Error(err))
		return
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	content, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return
	}

	claTextCache = string(content)
	return c.String(http.StatusOK, claTextCache)
}
