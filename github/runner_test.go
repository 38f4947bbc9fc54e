package github

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/clacommunity/cla-bot/allowlist"
	"github.com/clacommunity/cla-bot/blockchain"
	"github.com/clacommunity/cla-bot/settings"
	"github.com/clacommunity/cla-bot/types"
	"github.com/google/go-github/v42/github"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	webhook "github.com/go-playground/webhooks/v6/github"
)

func testEval() *types.EvaluationInfo {
	return &types.EvaluationInfo{
		Action:        "opened",
		RepoOwner:     "myOwner",
		RepoName:      "myRepo",
		PRNumber:      7,
		Sha:           "headSha",
		HeadBranch:    "myBranch",
		IsPullRequest: true,
	}
}

func setupRunner(t *testing.T, ghMock *GHInterfaceMock, allowed []string, orgExemption bool) *ClaRunner {
	logger := zaptest.NewLogger(t)
	client := ghMock.NewClient(nil)
	s := settings.Settings{
		SignatureText: testSignatureText,
		ClaFilePath:   "cla.json",
		ClaFileBranch: "main",
	}
	return &ClaRunner{
		Logger:    logger,
		Settings:  s,
		Allowlist: allowlist.New(allowed),
		Client:    client,
		BotName:   "cla-bot",
		Ledger:    NewClaLedger(logger, client.Repositories, "myOwner", "myRepo", s.ClaFilePath, s.ClaFileBranch),
		Authors:   NewPullAuthors(logger, client.PullRequests, "myOwner", "myRepo", 7),
		Comments:  NewPullComments(logger, client.Issues, "myOwner", "myRepo", 7, s.SignatureText, "cla-bot", "https://cla.example.com"),
		Members:   NewOrgMembers(logger, client.Organizations, "myOwner", orgExemption),
		Checks:    NewPullCheckRunner(logger, client.Actions, "myOwner", "myRepo", "myBranch"),
		Poster:    blockchain.New(logger, "", ""),
	}
}

func missingLedgerRepositoriesMock() RepositoriesMock {
	return RepositoriesMock{
		mockGetContentsResponse: mockResponse(http.StatusNotFound),
		mockGetContentsError:    fmt.Errorf("404 Not Found"),
	}
}

func ledgerRepositoriesMock(signedNames ...string) RepositoriesMock {
	claFile := &types.ClaFile{}
	for _, name := range signedNames {
		claFile.SignedContributors = append(claFile.SignedContributors, types.SignedUser{Name: name})
	}
	content, _ := claFile.Serialize()
	return RepositoriesMock{
		mockGetContentsFileContent: &github.RepositoryContent{
			Content: github.String(string(content)),
			SHA:     github.String("ledgerSha"),
		},
		mockGetContentsResponse: mockResponse(http.StatusOK),
	}
}

func TestExecuteUnsignedAuthorsBlockThePull(t *testing.T) {
	// required authors alice and bob, empty ledger, no confirmations
	ghMock := &GHInterfaceMock{
		RepositoriesMock: missingLedgerRepositoriesMock(),
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("alice", "alice@example.com", "Alice"),
			commitBy("bob", "bob@example.com", "Bob"),
		}},
	}
	runner := setupRunner(t, ghMock, nil, false)

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	assert.False(t, passed)

	assert.Equal(t, "failure", ghMock.RepositoriesMock.lastStatusState())
	assert.Equal(t, 0, ghMock.RepositoriesMock.createFileCallCount)
	assert.Equal(t, 0, ghMock.RepositoriesMock.updateFileCallCount)
	assert.Equal(t, 1, len(ghMock.IssuesMock.createdComments))
	body := ghMock.IssuesMock.createdComments[0].GetBody()
	assert.Contains(t, body, "- [ ] @alice")
	assert.Contains(t, body, "- [ ] @bob")
	assert.Equal(t, 0, len(ghMock.ActionsMock.rerunWorkflowCalledID))
}

func TestExecutePreviouslySignedAuthorPasses(t *testing.T) {
	ghMock := &GHInterfaceMock{
		RepositoriesMock: ledgerRepositoriesMock("alice"),
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("alice", "alice@example.com", "Alice"),
		}},
	}
	runner := setupRunner(t, ghMock, nil, false)

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	assert.True(t, passed)

	assert.Equal(t, "success", ghMock.RepositoriesMock.lastStatusState())
	assert.Equal(t, 0, ghMock.RepositoriesMock.createFileCallCount)
	assert.Equal(t, 0, ghMock.RepositoriesMock.updateFileCallCount)
	assert.Equal(t, 0, len(ghMock.ActionsMock.rerunWorkflowCalledID))
	// the status comment is still refreshed
	assert.Equal(t, 1, len(ghMock.IssuesMock.createdComments))
	assert.Contains(t, ghMock.IssuesMock.createdComments[0].GetBody(), "All contributors have signed the CLA")
}

func TestExecuteNewSignatureTriggersWriteBack(t *testing.T) {
	var notarized []types.SignedUser
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := ioutil.ReadAll(r.Body)
		assert.NoError(t, err)
		var body struct {
			Signatures []types.SignedUser `json:"signatures"`
		}
		assert.NoError(t, json.Unmarshal(raw, &body))
		notarized = body.Signatures
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ghMock := &GHInterfaceMock{
		RepositoriesMock: missingLedgerRepositoriesMock(),
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("alice", "alice@example.com", "Alice"),
			commitBy("bob", "bob@example.com", "Bob"),
		}},
		IssuesMock: IssuesMock{mockListComments: []*github.IssueComment{
			issueCommentBy(1, "alice", testSignatureText),
		}},
		ActionsMock: ActionsMock{mockWorkflowRuns: &github.WorkflowRuns{
			WorkflowRuns: []*github.WorkflowRun{
				{ID: github.Int64(99), Status: github.String("completed")},
			},
		}},
	}
	runner := setupRunner(t, ghMock, nil, false)
	runner.Poster = blockchain.New(zaptest.NewLogger(t), ts.URL, "")

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	// bob is still outstanding
	assert.False(t, passed)

	// ledger was created with alice, commit message names her
	assert.Equal(t, 1, ghMock.RepositoriesMock.createFileCallCount)
	assert.Contains(t, *ghMock.RepositoriesMock.lastCreateFileOpts.Message, "@alice")
	assert.Contains(t, string(ghMock.RepositoriesMock.lastCreateFileOpts.Content), `"alice"`)

	// notarization got exactly the new signer
	assert.Equal(t, 1, len(notarized))
	assert.Equal(t, "alice", notarized[0].Name)

	// comment shows alice signed, bob not
	assert.Equal(t, 1, len(ghMock.IssuesMock.createdComments))
	body := ghMock.IssuesMock.createdComments[0].GetBody()
	assert.Contains(t, body, "- [x] @alice")
	assert.Contains(t, body, "- [ ] @bob")

	// latest check was re-triggered
	assert.Equal(t, []int64{99}, ghMock.ActionsMock.rerunWorkflowCalledID)

	assert.Equal(t, "failure", ghMock.RepositoriesMock.lastStatusState())
}

func TestExecuteNotarizationFailureDoesNotAbort(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	ghMock := &GHInterfaceMock{
		RepositoriesMock: missingLedgerRepositoriesMock(),
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("alice", "alice@example.com", "Alice"),
		}},
		IssuesMock: IssuesMock{mockListComments: []*github.IssueComment{
			issueCommentBy(1, "alice", testSignatureText),
		}},
	}
	runner := setupRunner(t, ghMock, nil, false)
	runner.Poster = blockchain.New(zaptest.NewLogger(t), ts.URL, "")

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 1, ghMock.RepositoriesMock.createFileCallCount)
	assert.Equal(t, "success", ghMock.RepositoriesMock.lastStatusState())
}

func TestExecuteAllowlistedAuthorsAreNotRequired(t *testing.T) {
	ghMock := &GHInterfaceMock{
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("deploy-bot", "bot@example.com", "Deploy Bot"),
		}},
	}
	runner := setupRunner(t, ghMock, []string{"*-bot"}, false)

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	assert.True(t, passed)

	// nothing to enforce: no comment, no commit
	assert.Equal(t, 0, len(ghMock.IssuesMock.createdComments))
	assert.Equal(t, 0, ghMock.RepositoriesMock.createFileCallCount)
	assert.Equal(t, "success", ghMock.RepositoriesMock.lastStatusState())
}

func TestExecuteOrgMembersAreNotRequired(t *testing.T) {
	ghMock := &GHInterfaceMock{
		RepositoriesMock: ledgerRepositoriesMock("alice"),
		PullRequestsMock: PullRequestsMock{mockRepositoryCommits: []*github.RepositoryCommit{
			commitBy("alice", "alice@example.com", "Alice"),
			commitBy("insider", "insider@example.com", "Insider"),
		}},
		OrganizationsMock: OrganizationsMock{mockMembers: []*github.User{
			{Login: github.String("insider")},
		}},
	}
	runner := setupRunner(t, ghMock, nil, true)

	passed, err := runner.Execute(testEval())
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestExecuteClosedActionLocksAndPasses(t *testing.T) {
	ghMock := &GHInterfaceMock{}
	runner := setupRunner(t, ghMock, nil, false)

	eval := testEval()
	eval.Action = "closed"

	passed, err := runner.Execute(eval)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 1, ghMock.IssuesMock.lockCallCount)
	assert.Equal(t, 0, len(ghMock.RepositoriesMock.createdStatuses))
}

func TestExecuteClosedActionLockFailureIsSwallowed(t *testing.T) {
	ghMock := &GHInterfaceMock{
		IssuesMock: IssuesMock{mockLockError: fmt.Errorf("forced Lock error")},
	}
	runner := setupRunner(t, ghMock, nil, false)

	eval := testEval()
	eval.Action = "closed"

	passed, err := runner.Execute(eval)
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestExecuteNonPullIssueCommentIsIgnored(t *testing.T) {
	ghMock := &GHInterfaceMock{}
	runner := setupRunner(t, ghMock, nil, false)

	eval := testEval()
	eval.Action = "issue_comment"
	eval.IsPullRequest = false

	passed, err := runner.Execute(eval)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 0, ghMock.IssuesMock.lockCallCount)
	assert.Equal(t, 0, len(ghMock.RepositoriesMock.createdStatuses))
	assert.Equal(t, 0, len(ghMock.IssuesMock.createdComments))
}

func TestExecuteResolvesHeadForCommentTriggeredRuns(t *testing.T) {
	ghMock := &GHInterfaceMock{
		RepositoriesMock: ledgerRepositoriesMock("alice"),
		PullRequestsMock: PullRequestsMock{
			mockPullRequest: &github.PullRequest{Head: &github.PullRequestBranch{
				SHA: github.String("resolvedSha"),
				Ref: github.String("resolvedBranch"),
			}},
			mockRepositoryCommits: []*github.RepositoryCommit{
				commitBy("alice", "alice@example.com", "Alice"),
			},
		},
	}
	runner := setupRunner(t, ghMock, nil, false)

	eval := testEval()
	eval.Action = "issue_comment"
	eval.Sha = ""
	eval.HeadBranch = ""

	passed, err := runner.Execute(eval)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, "resolvedSha", eval.Sha)
	assert.Equal(t, "resolvedBranch", eval.HeadBranch)
}

func TestExecuteAuthorFetchErrorAborts(t *testing.T) {
	forcedError := fmt.Errorf("forced ListCommits error")
	ghMock := &GHInterfaceMock{
		PullRequestsMock: PullRequestsMock{mockListCommitsError: forcedError},
	}
	runner := setupRunner(t, ghMock, nil, false)

	passed, err := runner.Execute(testEval())
	assert.EqualError(t, err, forcedError.Error())
	assert.False(t, passed)
}

func TestHandlePullRequestIgnoredAction(t *testing.T) {
	passed, err := HandlePullRequest(zaptest.NewLogger(t), settings.Settings{}, nil, webhook.PullRequestPayload{Action: "labeled"})
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestHandleIssueCommentIgnoresEditedComments(t *testing.T) {
	payload := webhook.IssueCommentPayload{Action: "edited"}
	passed, err := HandleIssueComment(zaptest.NewLogger(t), settings.Settings{}, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestHandleIssueCommentIgnoresUnrelatedBody(t *testing.T) {
	s := settings.Settings{SignatureText: testSignatureText, RecheckText: "recheck"}
	payload := webhook.IssueCommentPayload{Action: "created"}
	payload.Comment.Body = "nice work!"

	passed, err := HandleIssueComment(zaptest.NewLogger(t), s, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestHandleIssueCommentIgnoresNonPullIssues(t *testing.T) {
	s := settings.Settings{SignatureText: testSignatureText, RecheckText: "recheck"}
	payload := webhook.IssueCommentPayload{Action: "created"}
	payload.Comment.Body = testSignatureText
	payload.Issue.Number = 12
	payload.Issue.HTMLURL = "https://github.com/myOwner/myRepo/issues/12"

	passed, err := HandleIssueComment(zaptest.NewLogger(t), s, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestHandlePullRequestClosedLocksViaAppAuth(t *testing.T) {
	resetPem := SetupTestPemFile(t)
	defer resetPem()
	resetJWT := SetupMockGHJWT()
	defer resetJWT()

	origGHImpl := GHImpl
	defer func() {
		GHImpl = origGHImpl
	}()
	ghMock := &GHInterfaceMock{}
	GHImpl = ghMock

	s := settings.Settings{
		AppId:         42,
		PemFile:       FilenameClaBotPem,
		SignatureText: testSignatureText,
		ClaFilePath:   "cla.json",
		ClaFileBranch: "main",
	}
	payload := webhook.PullRequestPayload{Action: "closed", Number: 7}
	payload.Repository.Owner.Login = "myOwner"
	payload.Repository.Name = "myRepo"
	payload.Installation.ID = 1234

	passed, err := HandlePullRequest(zaptest.NewLogger(t), s, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 1, ghMock.IssuesMock.lockCallCount)
}

func TestHandlePullRequestUsesConfiguredPemFile(t *testing.T) {
	pemPath := filepath.Join(t.TempDir(), "deploy-key.pem")
	assert.NoError(t, os.WriteFile(pemPath, []byte(testPrivatePem), 0644))

	resetJWT := SetupMockGHJWT()
	defer resetJWT()

	origGHImpl := GHImpl
	defer func() {
		GHImpl = origGHImpl
	}()
	ghMock := &GHInterfaceMock{}
	GHImpl = ghMock

	s := settings.Settings{
		AppId:         42,
		PemFile:       pemPath,
		SignatureText: testSignatureText,
		ClaFilePath:   "cla.json",
		ClaFileBranch: "main",
	}
	payload := webhook.PullRequestPayload{Action: "closed", Number: 7}
	payload.Repository.Owner.Login = "myOwner"
	payload.Repository.Name = "myRepo"
	payload.Installation.ID = 1234

	passed, err := HandlePullRequest(zaptest.NewLogger(t), s, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 1, ghMock.IssuesMock.lockCallCount)
}

func TestHandlePullRequestResolvesBotNameFromApp(t *testing.T) {
	resetPem := SetupTestPemFile(t)
	defer resetPem()

	// installation record without app_slug, the app endpoint fills the gap
	origGHJWT := GHJWTImpl
	defer func() {
		GHJWTImpl = origGHJWT
	}()
	GHJWTImpl = &GHJWTMock{AppsMock: AppsMock{
		mockInstallation: &github.Installation{},
		mockApp:          &github.App{Slug: github.String("fallbackSlug")},
		mockAppResp:      mockResponse(http.StatusOK),
	}}

	origGHImpl := GHImpl
	defer func() {
		GHImpl = origGHImpl
	}()
	ghMock := &GHInterfaceMock{}
	GHImpl = ghMock

	s := settings.Settings{
		AppId:         42,
		PemFile:       FilenameClaBotPem,
		SignatureText: testSignatureText,
		ClaFilePath:   "cla.json",
		ClaFileBranch: "main",
	}
	payload := webhook.PullRequestPayload{Action: "opened", Number: 7}
	payload.Repository.Owner.Login = "myOwner"
	payload.Repository.Name = "myRepo"
	payload.Installation.ID = 1234
	payload.PullRequest.Head.Sha = "headSha"
	payload.PullRequest.Head.Ref = "myBranch"

	passed, err := HandlePullRequest(zaptest.NewLogger(t), s, nil, payload)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.True(t, len(ghMock.RepositoriesMock.createdStatuses) > 0)
	assert.Equal(t, "fallbackSlug", ghMock.RepositoriesMock.createdStatuses[0].GetContext())
}
