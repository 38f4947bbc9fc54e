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
// +build go1.16

package db

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/clacommunity/cla-bot/types"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
)

const sqlInsertSignatureEvent = `INSERT INTO signature_events
		(Id, LoginName, RepoOwner, RepoName, PrNumber, SignedAt)
		VALUES ($1, $2, $3, $4, $5, $6)`

const msgTemplateErrInsertSignatureEvent = "insert error recording signature event. event: %+v, error: %+v"

// IAuditDB is the optional audit trail of signature events. The committed
// ledger file stays authoritative; these rows only exist for bookkeeping.
type IAuditDB interface {
	InsertSignatureEvent(e *types.SignatureEvent) error
	GetSignatureEventsForLogin(login string) ([]types.SignatureEvent, error)
	MigrateDB(migrateSourceURL string) error
}

type AuditDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Roll that beautiful bean footage
var _ IAuditDB = (*AuditDB)(nil)

func New(db *sql.DB, logger *zap.Logger) *AuditDB {
	return &AuditDB{db: db, logger: logger}
}

func (p *AuditDB) InsertSignatureEvent(e *types.SignatureEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	result, err := p.db.Exec(sqlInsertSignatureEvent, e.ID, e.Login, e.RepoOwner, e.RepoName, e.PRNumber, e.SignedAt)
	if err != nil {
		return fmt.Errorf(msgTemplateErrInsertSignatureEvent, e, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil || rowsAffected == 0 {
		return fmt.Errorf(msgTemplateErrInsertSignatureEvent, e, err)
	}
	return nil
}

const SqlSelectSignatureEvents = `SELECT
		Id, LoginName, RepoOwner, RepoName, PrNumber, SignedAt
		FROM signature_events
		WHERE LoginName = $1`

func (p *AuditDB) GetSignatureEventsForLogin(login string) (events []types.SignatureEvent, err error) {
	p.logger.Debug("fetch signature events",
		zap.String("login", login),
	)

	rows, err := p.db.Query(SqlSelectSignatureEvents, login)
	if err != nil {
		return
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		event := types.SignatureEvent{}
		err = rows.Scan(
			&event.ID,
			&event.Login,
			&event.RepoOwner,
			&event.RepoName,
			&event.PRNumber,
			&event.SignedAt,
		)
		if err != nil {
			return
		}
		events = append(events, event)
	}
	err = rows.Err()

	return
}

func (p *AuditDB) MigrateDB(migrateSourceURL string) (err error) {
	driver, err := postgres.WithInstance(p.db, &postgres.Config{})
	if err != nil {
		return
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrateSourceURL,
		"postgres", driver)
	if err != nil {
		return
	}

	if err = m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			// we can ignore (and clear) the "no change" error
			err = nil
		}
	}
	return
}
