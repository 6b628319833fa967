package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrTeamMemberNotFound = errors.New("team membership not found")
	ErrThreadNotFound     = errors.New("chat thread not found")
	ErrInviteNotFound     = errors.New("invitation not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetTeam(teamId uuid.UUID, db *gorm.DB) (Team, error) {
	var team Team

	result := db.First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return team, ErrTeamNotFound
		}
		slog.Error("sql error in get team", "team_id", teamId, "error", result.Error)
		return team, ErrDbAccessFailed
	}

	return team, nil
}

func GetPortfolio(portfolioId uuid.UUID, db *gorm.DB) (Portfolio, error) {
	var portfolio Portfolio

	result := db.First(&portfolio, "id = ?", portfolioId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return portfolio, ErrPortfolioNotFound
		}
		slog.Error("sql error in get portfolio", "portfolio_id", portfolioId, "error", result.Error)
		return portfolio, ErrDbAccessFailed
	}

	return portfolio, nil
}

func GetAccount(accountId uuid.UUID, db *gorm.DB) (Account, error) {
	var account Account

	result := db.First(&account, "id = ?", accountId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return account, ErrAccountNotFound
		}
		slog.Error("sql error in get account", "account_id", accountId, "error", result.Error)
		return account, ErrDbAccessFailed
	}

	return account, nil
}

func GetTeamMember(teamId, userId uuid.UUID, db *gorm.DB) (TeamMember, error) {
	var member TeamMember

	result := db.First(&member, "team_id = ? and user_id = ?", teamId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return member, ErrTeamMemberNotFound
		}
		slog.Error("sql error in get team member", "team_id", teamId, "user_id", userId, "error", result.Error)
		return member, ErrDbAccessFailed
	}

	return member, nil
}

func GetUserTeamIds(userId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var members []TeamMember
	result := db.Find(&members, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error in get user team ids", "user_id", userId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.TeamId)
	}
	return ids, nil
}

func GetThreadForUser(threadId string, userId uuid.UUID, db *gorm.DB) (ChatThread, error) {
	var thread ChatThread

	result := db.First(&thread, "thread_id = ? and user_id = ?", threadId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return thread, ErrThreadNotFound
		}
		slog.Error("sql error in get thread", "thread_id", threadId, "user_id", userId, "error", result.Error)
		return thread, ErrDbAccessFailed
	}

	return thread, nil
}
