package storage

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    error
	}{
		{404, "Not Found", ErrNotFound},
		{401, "Bad credentials", ErrUnauthorized},
		{403, "Resource not accessible", ErrUnauthorized},
		{409, "a.png does not match abc", ErrConflict},
		{412, "precondition failed", ErrConflict},
		{422, "Invalid request.\n\n\"sha\" wasn't supplied.", ErrConflict},
		{400, "A file with this name already exists", ErrConflict},
		{422, "path is invalid", nil},
		{500, "boom", nil},
	}
	for _, tt := range tests {
		err := classifyStatus(tt.status, tt.message)
		var remote *RemoteError
		assert.True(t, errors.As(err, &remote))
		assert.Equal(t, tt.status, remote.StatusCode)
		assert.Equal(t, tt.message, remote.Message)
		if tt.want == nil {
			assert.False(t, errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict), "status %d", tt.status)
			continue
		}
		assert.True(t, errors.Is(err, tt.want), "status %d", tt.status)
	}
}

func TestNetworkErrorRedactsCredentials(t *testing.T) {
	err := networkError("stat a.png", &url.Error{
		Op:  "Get",
		URL: "https://user:pw@gitee.com/api/v5/repos/o/r/contents/a.png?access_token=s3cr3t&ref=main",
		Err: errors.New("connection refused"),
	})
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.NotContains(t, err.Error(), "pw@")
	assert.Contains(t, err.Error(), "connection refused")
}
