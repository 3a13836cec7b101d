package models

import "github.com/golang-jwt/jwt/v5"

// ActorClaims are read from a bearer token to attribute actions.
type ActorClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor returns the most descriptive identity carried by the claims.
func (c *ActorClaims) Actor() string {
	switch {
	case c == nil:
		return ""
	case c.Email != "":
		return c.Email
	case c.FullName != "":
		return c.FullName
	case c.UserID != "":
		return c.UserID
	default:
		return c.Subject
	}
}
