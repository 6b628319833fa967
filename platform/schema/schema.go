package schema

import (
	"time"

	"github.com/google/uuid"
)

// Knowledge record categories.
const (
	CategoryInventory   = "inventory"
	CategoryInstruments = "instruments"
	CategoryTechnical   = "technical"
	CategoryAccessMisc  = "access_misc"
	CategorySurgeonInfo = "surgeon_info"
	CategoryDoctorInfo  = "doctor_info"
)

// Sentinel values stored in Document.OpenAIFileId while ingestion is in
// flight or has failed. Anything else is a real file id.
const (
	FileProcessing = "processing"
	FileFailed     = "failed"
)

// Document types.
const (
	DocTypePortfolio = "portfolio"
	DocTypeInventory = "inventory"
	DocTypeGeneral   = "general"
)

// Team member roles and statuses.
const (
	RoleManager = "manager"
	RoleMember  = "member"

	MemberActive  = "active"
	MemberPending = "pending"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`
}

// Team is the tenant root. Every other entity hangs off a team and is
// removed by the deletion service when the team is deleted. The vector store
// id fields are caches of external resources; the general knowledge store id
// exists alongside the general store id for backward compatibility with the
// legacy schema, and both must be considered during cleanup.
type Team struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt time.Time

	GeneralVectorStoreId          *string `gorm:"size:100"`
	GeneralKnowledgeVectorStoreId *string `gorm:"size:100"`
}

type Portfolio struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"size:100;not null"`
	Description string

	VectorStoreId *string `gorm:"size:100"`

	CreatedAt time.Time

	Team *Team
}

type Account struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name        string `gorm:"size:100;not null"`
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time

	Team       *Team
	Portfolios []Portfolio `gorm:"many2many:account_portfolios;"`
}

type AccountPortfolio struct {
	AccountId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	PortfolioId uuid.UUID `gorm:"type:uuid;primaryKey"`
}

// KnowledgeRecord is a typed fact scoped by (team, account?, portfolio?).
// A nil account or portfolio widens the scope: portfolio-specific facts have
// both set, account-level facts have only the account, team-general facts
// (surgeon/doctor info) have neither. Logical uniqueness is
// (team, account, portfolio, category, title); the save path replaces all
// rows in a scope inside one transaction rather than updating in place.
type KnowledgeRecord struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	AccountId   *uuid.UUID `gorm:"type:uuid;index"`
	PortfolioId *uuid.UUID `gorm:"type:uuid;index"`

	Category string `gorm:"size:50;not null"`
	Title    string `gorm:"size:200;not null"`
	Content  string

	Quantity int
	ImageUrl string

	UpdatedAt time.Time
}

type Document struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	PortfolioId uuid.UUID  `gorm:"type:uuid;index"`
	AccountId   *uuid.UUID `gorm:"type:uuid"`

	OriginalName string `gorm:"size:255;not null"`
	FilePath     string `gorm:"size:500;not null"`
	DocumentType string `gorm:"size:50;not null;default:'portfolio'"`

	OpenAIFileId string `gorm:"column:openai_file_id;size:100;index"`

	CreatedAt time.Time
}

// Ready reports whether the document has completed external ingestion and
// carries a usable file id.
func (d *Document) Ready() bool {
	return d.OpenAIFileId != "" && d.OpenAIFileId != FileProcessing && d.OpenAIFileId != FileFailed
}

// AssistantRecord caches an external assistant + vector store pairing for a
// (team, portfolio, account?) scope. It is valid until a document newer than
// CreatedAt is uploaded for the same scope.
type AssistantRecord struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	PortfolioId uuid.UUID  `gorm:"type:uuid;index"`
	AccountId   *uuid.UUID `gorm:"type:uuid"`

	OpenAIAssistantId string `gorm:"size:100;not null"`
	VectorStoreId     string `gorm:"size:100"`
	Name              string `gorm:"size:200"`

	CreatedAt time.Time
}

type ChatThread struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;not null;index"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	AccountId   uuid.UUID `gorm:"type:uuid"`
	PortfolioId uuid.UUID `gorm:"type:uuid"`

	AssistantId string `gorm:"size:100"`
	ThreadId    string `gorm:"size:100;not null;uniqueIndex"`
	Title       string `gorm:"size:200"`

	CreatedAt time.Time
}

type MessageRating struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_message"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	ThreadId  string `gorm:"size:100;not null"`
	MessageId string `gorm:"size:100;not null;uniqueIndex:idx_user_message"`

	AccountId   uuid.UUID `gorm:"type:uuid"`
	PortfolioId uuid.UUID `gorm:"type:uuid"`

	Rating         *int
	FeedbackText   string
	ResponseTimeMs *int
	Citations      []string `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type NoteImage struct {
	Url         string `json:"url"`
	Description string `json:"description"`
}

type Note struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;not null;index"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	AccountId   *uuid.UUID `gorm:"type:uuid"`
	PortfolioId uuid.UUID  `gorm:"type:uuid;index"`

	Title   string `gorm:"size:200;not null"`
	Content string

	Images []NoteImage `gorm:"serializer:json"`
	// Single image url kept from the pre-multi-image schema.
	ImageUrl string `gorm:"size:500"`

	IsShared          bool `gorm:"not null;default:false"`
	IsPortfolioShared bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TeamMember struct {
	TeamId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Role   string `gorm:"size:50;not null;default:'member'"`
	Status string `gorm:"size:50;not null;default:'active'"`

	JoinedAt time.Time

	User *User `gorm:"constraint:OnDelete:CASCADE"`
}

type TeamInvitation struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamId uuid.UUID `gorm:"type:uuid;not null;index"`

	Email string `gorm:"size:254;not null"`
	Role  string `gorm:"size:50;not null;default:'member'"`
	Token string `gorm:"size:500;not null"`

	ExpiresAt  time.Time
	AcceptedAt *time.Time

	CreatedAt time.Time
}

// KnowledgeFileRecord tracks the generated knowledge markdown file for a
// (team, portfolio) so the updater can skip regeneration when nothing
// changed. It is written only after a successful vector store swap.
type KnowledgeFileRecord struct {
	TeamId      uuid.UUID `gorm:"type:uuid;primaryKey"`
	PortfolioId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Filename     string `gorm:"size:255;not null"`
	OpenAIFileId string `gorm:"size:100;not null"`

	LastGenerated time.Time
}

// Tables returns every model in dependency-safe creation order; used by
// AutoMigrate in main and in tests.
func Tables() []interface{} {
	return []interface{}{
		&User{}, &Team{}, &Portfolio{}, &Account{}, &AccountPortfolio{},
		&KnowledgeRecord{}, &Document{}, &AssistantRecord{}, &ChatThread{},
		&MessageRating{}, &Note{}, &TeamMember{}, &TeamInvitation{},
		&KnowledgeFileRecord{},
	}
}
