package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldkit/platform/auth"
	"fieldkit/platform/cleanup"
	"fieldkit/platform/schema"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const invitationTtl = 7 * 24 * time.Hour

type TeamService struct {
	db         *gorm.DB
	userAuth   auth.IdentityProvider
	inviteAuth *auth.JwtManager
	mailer     Mailer
	deletion   *cleanup.DeletionService
}

func (s *TeamService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateTeam)
	r.Get("/list", s.List)
	r.Post("/invitations/accept", s.AcceptInvitation)

	r.With(auth.AdminOnly(s.db)).Get("/analytics", s.Analytics)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.TeamMemberOnly(s.db))

			r.Get("/info", s.Info)
			r.Get("/members", s.Members)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.TeamManagerOnly(s.db))

			r.Post("/invitations", s.CreateInvitation)
			r.Delete("/", s.DeleteTeam)
		})
	})

	return r
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type createTeamResponse struct {
	TeamId uuid.UUID `json:"team_id"`
}

func (s *TeamService) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var params createTeamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "Team name must be specified", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	newTeam := schema.Team{
		Id: uuid.New(), Name: params.Name, CreatedBy: user.Id, CreatedAt: time.Now(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existingTeam schema.Team
		result := txn.Limit(1).Find(&existingTeam, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate team name", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("team with name %v already exists", params.Name), http.StatusConflict)
		}

		result = txn.Create(&newTeam)
		if result.Error != nil {
			slog.Error("sql error creating new team", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// The creator is the team's original manager.
		member := schema.TeamMember{
			TeamId: newTeam.Id, UserId: user.Id,
			Role: schema.RoleManager, Status: schema.MemberActive, JoinedAt: time.Now(),
		}
		result = txn.Create(&member)
		if result.Error != nil {
			slog.Error("sql error creating team manager membership", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating team: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createTeamResponse{TeamId: newTeam.Id})
}

type teamInfo struct {
	TeamId    uuid.UUID `json:"team_id"`
	Name      string    `json:"name"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Role      string    `json:"role,omitempty"`
}

func (s *TeamService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var teams []schema.Team
	if user.IsAdmin {
		if result := s.db.Find(&teams); result.Error != nil {
			slog.Error("sql error listing teams", "error", result.Error)
			http.Error(w, "error listing teams", http.StatusInternalServerError)
			return
		}
	} else {
		teamIds, err := schema.GetUserTeamIds(user.Id, s.db)
		if err != nil {
			http.Error(w, "error listing teams", http.StatusInternalServerError)
			return
		}
		if len(teamIds) > 0 {
			if result := s.db.Find(&teams, "id IN ?", teamIds); result.Error != nil {
				slog.Error("sql error listing user teams", "user_id", user.Id, "error", result.Error)
				http.Error(w, "error listing teams", http.StatusInternalServerError)
				return
			}
		}
	}

	infos := make([]teamInfo, 0, len(teams))
	for _, team := range teams {
		infos = append(infos, teamInfo{
			TeamId: team.Id, Name: team.Name, CreatedBy: team.CreatedBy, CreatedAt: team.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *TeamService) Info(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	team, err := schema.GetTeam(teamId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJsonResponse(w, teamInfo{
		TeamId: team.Id, Name: team.Name, CreatedBy: team.CreatedBy, CreatedAt: team.CreatedAt,
	})
}

type teamMemberInfo struct {
	UserId   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

func (s *TeamService) Members(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var members []schema.TeamMember
	result := s.db.Preload("User").Find(&members, "team_id = ?", teamId)
	if result.Error != nil {
		slog.Error("sql error listing team members", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing team members", http.StatusInternalServerError)
		return
	}

	infos := make([]teamMemberInfo, 0, len(members))
	for _, member := range members {
		info := teamMemberInfo{
			UserId: member.UserId, Role: member.Role, Status: member.Status, JoinedAt: member.JoinedAt,
		}
		if member.User != nil {
			info.Username = member.User.Username
			info.Email = member.User.Email
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

type createInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createInvitationResponse struct {
	InvitationId uuid.UUID `json:"invitation_id"`
	Token        string    `json:"token"`
}

func (s *TeamService) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params createInvitationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" {
		http.Error(w, "invitation email must be specified", http.StatusBadRequest)
		return
	}
	if params.Role == "" {
		params.Role = schema.RoleMember
	}
	if params.Role != schema.RoleManager && params.Role != schema.RoleMember {
		http.Error(w, fmt.Sprintf("invalid role %v", params.Role), http.StatusBadRequest)
		return
	}

	team, err := schema.GetTeam(teamId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	invitation := schema.TeamInvitation{
		Id: uuid.New(), TeamId: teamId, Email: params.Email, Role: params.Role,
		ExpiresAt: time.Now().Add(invitationTtl), CreatedAt: time.Now(),
	}

	token, err := s.inviteAuth.CreateInviteJwt(invitation.Id)
	if err != nil {
		slog.Error("error creating invitation token", "error", err)
		http.Error(w, "error creating invitation", http.StatusInternalServerError)
		return
	}
	invitation.Token = token

	if result := s.db.Create(&invitation); result.Error != nil {
		slog.Error("sql error creating invitation", "team_id", teamId, "error", result.Error)
		http.Error(w, "error creating invitation", http.StatusInternalServerError)
		return
	}

	// Email delivery must not block or fail the inviting request.
	go func() {
		if err := s.mailer.SendInvitation(invitation.Email, team.Name, token); err != nil {
			slog.Error("error sending invitation email", "email", invitation.Email, "error", err)
		}
	}()

	utils.WriteJsonResponse(w, createInvitationResponse{InvitationId: invitation.Id, Token: token})
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

func (s *TeamService) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var params acceptInvitationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	invitationId, err := s.inviteAuth.ParseInviteJwt(params.Token)
	if err != nil {
		http.Error(w, "invalid invitation token", http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var invitation schema.TeamInvitation
		result := txn.Limit(1).Find(&invitation, "id = ?", invitationId)
		if result.Error != nil {
			slog.Error("sql error loading invitation", "invitation_id", invitationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrInviteNotFound, http.StatusNotFound)
		}

		if invitation.AcceptedAt != nil {
			return CodedError(errors.New("invitation has already been accepted"), http.StatusConflict)
		}
		if time.Now().After(invitation.ExpiresAt) {
			return CodedError(errors.New("invitation has expired"), http.StatusGone)
		}
		if invitation.Email != user.Email {
			return CodedError(errors.New("invitation was issued for a different email"), http.StatusForbidden)
		}

		member := schema.TeamMember{
			TeamId: invitation.TeamId, UserId: user.Id,
			Role: invitation.Role, Status: schema.MemberActive, JoinedAt: time.Now(),
		}
		if result := txn.Create(&member); result.Error != nil {
			slog.Error("sql error creating team membership", "team_id", invitation.TeamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		now := time.Now()
		result = txn.Model(&invitation).Update("accepted_at", &now)
		if result.Error != nil {
			slog.Error("sql error marking invitation accepted", "invitation_id", invitationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error accepting invitation: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type deleteTeamRequest struct {
	ConfirmationName        string `json:"confirmation_name"`
	DeleteExternalResources bool   `json:"delete_external_resources"`
}

func (s *TeamService) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params deleteTeamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	team, err := schema.GetTeam(teamId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// Only the manager who created the team may delete it, and they must
	// retype its exact name.
	if team.CreatedBy != user.Id {
		http.Error(w, "only the team's original manager can delete it", http.StatusForbidden)
		return
	}
	if params.ConfirmationName != team.Name {
		http.Error(w, "confirmation name does not match team name", http.StatusBadRequest)
		return
	}

	report := s.deletion.DeleteTeam(r.Context(), teamId, cleanup.DeletionOptions{
		DeleteExternalResources: params.DeleteExternalResources,
	})

	if report.Success {
		teamDeletions.WithLabelValues("success").Inc()
	} else {
		teamDeletions.WithLabelValues("failure").Inc()
	}

	utils.WriteJsonResponse(w, report)
}

type teamAnalytics struct {
	TeamId     uuid.UUID `json:"team_id"`
	Name       string    `json:"name"`
	Members    int64     `json:"members"`
	Portfolios int64     `json:"portfolios"`
	Accounts   int64     `json:"accounts"`
	Documents  int64     `json:"documents"`
	Threads    int64     `json:"threads"`
}

func (s *TeamService) Analytics(w http.ResponseWriter, r *http.Request) {
	var teams []schema.Team
	if result := s.db.Find(&teams); result.Error != nil {
		slog.Error("sql error listing teams for analytics", "error", result.Error)
		http.Error(w, "error computing analytics", http.StatusInternalServerError)
		return
	}

	countByTeam := func(model interface{}, teamId uuid.UUID) (int64, error) {
		var count int64
		result := s.db.Model(model).Where("team_id = ?", teamId).Count(&count)
		return count, result.Error
	}

	analytics := make([]teamAnalytics, 0, len(teams))
	for _, team := range teams {
		entry := teamAnalytics{TeamId: team.Id, Name: team.Name}

		counts := []struct {
			dest  *int64
			model interface{}
		}{
			{&entry.Members, &schema.TeamMember{}},
			{&entry.Portfolios, &schema.Portfolio{}},
			{&entry.Accounts, &schema.Account{}},
			{&entry.Documents, &schema.Document{}},
			{&entry.Threads, &schema.ChatThread{}},
		}
		for _, c := range counts {
			count, err := countByTeam(c.model, team.Id)
			if err != nil {
				slog.Error("sql error counting team rows for analytics", "team_id", team.Id, "error", err)
				http.Error(w, "error computing analytics", http.StatusInternalServerError)
				return
			}
			*c.dest = count
		}

		analytics = append(analytics, entry)
	}

	utils.WriteJsonResponse(w, analytics)
}
