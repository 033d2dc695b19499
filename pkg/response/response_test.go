package response

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopes(t *testing.T) {
	ok, err := json.Marshal(Success(http.StatusOK, map[string]int{"n": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","status_code":200,"data":{"n":1}}`, string(ok))

	fail, err := json.Marshal(Failure(http.StatusConflict, "not_claimable", "request already claimed"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","status_code":409,"error":"request already claimed","error_code":"not_claimable"}`, string(fail))
}
