package auth

import "time"

// Identity is a principal as the credential store knows it.
type Identity struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the decoded form of a token. Extra carries any claim that is not
// one of the registered ones.
type Claims struct {
	ID        string
	Subject   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
