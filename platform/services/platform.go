package services

import (
	"log"
	"net/http"
	"os"
	"slices"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/auth"
	"fieldkit/platform/chatctx"
	"fieldkit/platform/cleanup"
	"fieldkit/platform/storage"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Platform struct {
	user      UserService
	team      TeamService
	portfolio PortfolioService
	account   AccountService
	document  DocumentService
	note      NoteService
	chat      ChatService
	image     ImageService

	db *gorm.DB
}

func NewPlatform(
	db *gorm.DB, client assistantapi.Client, store storage.Storage, userAuth auth.IdentityProvider, mailer Mailer, secret []byte,
) Platform {
	contexts := chatctx.NewContextGenerator(db)
	markdown := chatctx.NewMarkdownGenerator(db)

	deletion := cleanup.NewDeletionService(
		db,
		cleanup.NewOpenAICleanup(client),
		cleanup.NewStorageCleanup(store),
	)

	return Platform{
		user: UserService{db: db, userAuth: userAuth},
		team: TeamService{
			db:         db,
			userAuth:   userAuth,
			inviteAuth: auth.NewJwtManager(slices.Concat(secret, []byte("invite"))),
			mailer:     mailer,
			deletion:   deletion,
		},
		portfolio: PortfolioService{db: db, client: client, store: store, userAuth: userAuth},
		account:   AccountService{db: db, userAuth: userAuth},
		document:  DocumentService{db: db, client: client, store: store, userAuth: userAuth},
		note:      NoteService{db: db, store: store, userAuth: userAuth},
		chat: ChatService{
			db:        db,
			client:    client,
			contexts:  contexts,
			updater:   chatctx.NewKnowledgeUpdater(db, client, markdown),
			inventory: chatctx.NewInventoryIndexer(db, client),
			sources:   chatctx.NewSourceExtractor(db, client),
			userAuth:  userAuth,
		},
		image: ImageService{store: store, userAuth: userAuth},
		db:    db,
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/team", p.team.Routes())
	r.Mount("/portfolio", p.portfolio.Routes())
	r.Mount("/account", p.account.Routes())
	r.Mount("/document", p.document.Routes())
	r.Mount("/note", p.note.Routes())
	r.Mount("/chat", p.chat.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

// ImageRoutes is mounted separately from the main api prefix so that stored
// image urls of the form /api/images/<path> resolve as-is.
func (p *Platform) ImageRoutes() chi.Router {
	return p.image.Routes()
}
