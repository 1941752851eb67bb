package api

import (
	"github.com/labstack/echo/v4"
	"github.com/wmde/mismatch-finder/internal/datastore"
)

// userContextKey is where the auth middleware is expected to store the
// authenticated user.
const userContextKey = "user"

// CurrentUserFunc extracts the acting user from the request context.
// It returns nil for unauthenticated requests.
type CurrentUserFunc func(echo.Context) *datastore.User

// defaultCurrentUser reads the user the auth middleware placed in the echo
// context.
func defaultCurrentUser(ctx echo.Context) *datastore.User {
	user, ok := ctx.Get(userContextKey).(*datastore.User)
	if !ok {
		return nil
	}
	return user
}
