package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockledger/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Authenticate(testSecret), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, actor)
	})
	r.GET("/admin", Authenticate(testSecret), RequireRole(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestParseActor(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"sub": "u-1", "name": "Dana", "role": model.RoleDistributorRepresentative,
		"distributor_id": "d-9", "exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	actor, err := ParseActor(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "u-1", Name: "Dana", Role: model.RoleDistributorRepresentative, DistributorID: "d-9"}, actor)

	_, err = ParseActor(tok, []byte("other"))
	assert.Error(t, err)

	noSub := signToken(t, jwt.MapClaims{"role": "admin"}, testSecret)
	_, err = ParseActor(noSub, testSecret)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "u-1", "role": "distributor"}, testSecret))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u-1"`)
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "u-1", "role": "distributor"}, testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: signToken(t, jwt.MapClaims{"sub": "root", "role": model.RoleAdmin}, testSecret)})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
