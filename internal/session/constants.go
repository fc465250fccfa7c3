// Package session provides the auth cookie constants shared by the token
// codec, the handlers and the middleware.
package session

import "time"

const (
	// CookieName is the name of the cookie that carries the encrypted token.
	CookieName = "STATELESS_AUTH"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"

	// CookieSameSite is always Strict; the cookie is never needed on
	// cross-site navigation.
	CookieSameSite = "Strict"
)

// ExpiredInstant is the Expires value used to make a client drop the cookie
// immediately: ten seconds after the Unix epoch.
var ExpiredInstant = time.UnixMilli(10000).UTC()
