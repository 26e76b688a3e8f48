package middleware

import (
	"crypto/subtle"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// sessionLoginRequest holds the login request id started in this browser
const sessionLoginRequest = "login_request_id"

// BindLoginRequest ties a login request to the browser session so that only
// the browser that started a handshake can finish it at /callback.
func BindLoginRequest(c *gin.Context, requestID string) error {
	session := sessions.Default(c)
	session.Set(sessionLoginRequest, requestID)
	return session.Save()
}

// ConsumeLoginState reports whether state is the login request bound to this
// session. The binding is cleared either way.
func ConsumeLoginState(c *gin.Context, state string) bool {
	session := sessions.Default(c)
	bound, _ := session.Get(sessionLoginRequest).(string)
	if bound != "" {
		session.Delete(sessionLoginRequest)
		_ = session.Save()
	}
	if bound == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bound), []byte(state)) == 1
}
