// Package gate authenticates incoming relay connections before any event
// handler is attached to them.
package gate

import (
	"net/http"
	"strings"

	midsec "ChatRelay/middleware/security"
	"ChatRelay/tools/errs"
	"ChatRelay/tools/security"
)

// Principal is the identity bound to a connection for its whole lifetime.
type Principal struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Gate verifies HMAC-signed bearer tokens. It holds no state besides the
// verification options and never calls the API of record.
type Gate struct {
	opts security.Options
}

func New(secret, alg string) *Gate {
	opts := security.DefaultOptions([]byte(secret))
	opts.Alg = alg
	return &Gate{opts: opts}
}

// Authenticate returns the principal and the raw token to forward upstream.
// Errors are errs.ErrAuthRequired or errs.ErrInvalidToken with detail.
func (g *Gate) Authenticate(r *http.Request) (Principal, string, error) {
	token, _ := midsec.ExtractToken(r)
	if token == "" {
		return Principal{}, "", errs.ErrAuthRequired
	}
	p, err := g.Verify(token)
	if err != nil {
		return Principal{}, "", err
	}
	return p, token, nil
}

// Verify checks a raw token.
func (g *Gate) Verify(token string) (Principal, error) {
	claims, err := security.Verify(g.opts, strings.TrimSpace(token))
	if err != nil {
		return Principal{}, errs.ErrInvalidToken.WithDetail(err.Error())
	}
	uid := claims.UserID()
	if uid == "" {
		return Principal{}, errs.ErrInvalidToken.WithDetail("token carries no subject")
	}
	return Principal{UserID: uid, DisplayName: claims.DisplayName()}, nil
}

// Verifier adapts the gate to plain HTTP route middleware.
func (g *Gate) Verifier() midsec.Verifier {
	return func(r *http.Request) (string, string, error) {
		p, token, err := g.Authenticate(r)
		return p.UserID, token, err
	}
}

// CloseCode maps an authentication error to its websocket close code.
func CloseCode(err error) (int, string) {
	if errs.ErrAuthentication.Is(err) {
		ce, _ := errs.AsCode(err)
		if ce.Code != errs.AuthenticationError {
			return ce.Code, ce.Msg
		}
	}
	return errs.InvalidTokenError, errs.ErrInvalidToken.Msg
}
