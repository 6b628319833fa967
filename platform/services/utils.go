package services

import (
	"errors"
	"log/slog"
	"net/http"

	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkTeamExists(txn *gorm.DB, teamId uuid.UUID) error {
	_, err := schema.GetTeam(teamId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkPortfolioInTeam(txn *gorm.DB, teamId, portfolioId uuid.UUID) error {
	portfolio, err := schema.GetPortfolio(portfolioId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrPortfolioNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if portfolio.TeamId != teamId {
		return CodedError(schema.ErrPortfolioNotFound, http.StatusNotFound)
	}
	return nil
}

func checkAccountInTeam(txn *gorm.DB, teamId, accountId uuid.UUID) error {
	account, err := schema.GetAccount(accountId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrAccountNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if account.TeamId != teamId {
		return CodedError(schema.ErrAccountNotFound, http.StatusNotFound)
	}
	return nil
}
