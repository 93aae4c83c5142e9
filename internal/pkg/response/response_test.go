package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, gin.H{"ok": true})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)
}

func TestAccepted(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Accepted(c, gin.H{"job_id": "x"})
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code       int
		wantStatus int
	}{
		{CodeParamError, http.StatusBadRequest},
		{CodeResourceNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeServerError, http.StatusInternalServerError},
		{9999, http.StatusInternalServerError}, // 未知错误码兜底
	}

	for _, tt := range tests {
		w := performRequest(func(c *gin.Context) {
			Error(c, tt.code, "")
		})
		assert.Equal(t, tt.wantStatus, w.Code, "code=%d", tt.code)
		resp := decode(t, w)
		assert.Equal(t, tt.code, resp.Code)
	}
}

func TestErrorDefaultMessage(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		NotFoundError(c, "")
	})
	resp := decode(t, w)
	assert.Equal(t, "资源不存在", resp.Message)
}

func TestSuccessPage(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		SuccessPage(c, 42, 2, 20, []string{"a"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data PageData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 42, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Page)
}
