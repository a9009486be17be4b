package client

import (
	"context"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// Remote is the authoritative backend as seen by the sync engine. Every
// call may fail; Create returns the record under its server-assigned id.
type Remote interface {
	Create(ctx context.Context, collection string, rec *models.Record) (*models.Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]*models.Record, error)
	Ping(ctx context.Context) error
}

// Tokens is an access/refresh token pair issued by the server.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is the result of a successful login.
type Session struct {
	Tokens  Tokens                `json:"tokens"`
	Context models.SessionContext `json:"session"`
}

// Authenticator manages credentials for a Remote.
type Authenticator interface {
	Register(ctx context.Context, email, password, displayName, companyName string) error
	Login(ctx context.Context, email, password string) (*Session, error)
	SetTokens(t Tokens)
	Tokens() Tokens
	// OnTokensRefreshed registers fn to be called after a transparent
	// token refresh, so new tokens can be persisted.
	OnTokensRefreshed(fn func(Tokens))
}

// Transport is a Remote that also authenticates and owns a connection.
type Transport interface {
	Remote
	Authenticator
	Close() error
}

func sessionFromMap(m map[string]any) models.SessionContext {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return models.SessionContext{
		UserID:    str("userId"),
		Email:     str("email"),
		Role:      models.Role(str("role")),
		CompanyID: str("companyId"),
	}
}

func recordsFromWire(docs []map[string]any) ([]*models.Record, error) {
	out := make([]*models.Record, 0, len(docs))
	for _, d := range docs {
		r, err := models.RecordFromWire(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
