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

package blockchain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clacommunity/cla-bot/types"
	"go.uber.org/zap"
)

// Poster notarizes signature events to an external ledger. Best-effort: the
// caller is expected to log and swallow failures.
type Poster interface {
	PostToBlockchain(signatures []types.SignedUser) error
}

type HTTPPoster struct {
	logger *zap.Logger
	client *http.Client
	url    string
	token  string
}

var _ Poster = (*HTTPPoster)(nil)

func New(logger *zap.Logger, url, token string) *HTTPPoster {
	return &HTTPPoster{
		logger: logger,
		client: &http.Client{},
		url:    url,
		token:  token,
	}
}

type postBody struct {
	Signatures []types.SignedUser `json:"signatures"`
}

func (p *HTTPPoster) PostToBlockchain(signatures []types.SignedUser) error {
	if p.url == "" {
		p.logger.Debug("no blockchain endpoint configured, skipping notarization")
		return nil
	}
	if len(signatures) == 0 {
		return nil
	}

	body, err := json.Marshal(postBody{Signatures: signatures})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected blockchain response code: %d", resp.StatusCode)
	}

	p.logger.Debug("notarized signatures",
		zap.Int("count", len(signatures)),
	)
	return nil
}
