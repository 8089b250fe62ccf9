package changes

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrors_MatchTheirSentinelOnly(t *testing.T) {
	all := []error{ErrValidation, ErrNotFound, ErrExpired, ErrStopped}
	tests := []struct {
		err  error
		want error
	}{
		{&ValidationError{Field: "keys", Message: "bad"}, ErrValidation},
		{&NotFoundError{Resource: "watcher", ID: "w"}, ErrNotFound},
		{&ExpiredError{WatcherID: "w", ExpiredAt: time.Unix(0, 0)}, ErrExpired},
		{&StoppedError{WatcherID: "w"}, ErrStopped},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("tool: %w", tt.err)
			for _, sentinel := range all {
				assert.Equal(t, sentinel == tt.want, errors.Is(wrapped, sentinel), "%v vs %v", tt.err, sentinel)
			}
		})
	}
}

func TestErrors_Messages(t *testing.T) {
	assert.Equal(t, "invalid keys: bad", (&ValidationError{Field: "keys", Message: "bad"}).Error())
	assert.Equal(t, "checkpoint not found: C", (&NotFoundError{Resource: "checkpoint", ID: "C"}).Error())
	assert.Contains(t, (&ExpiredError{WatcherID: "w"}).Error(), "create a new watcher")
	assert.Equal(t, "watcher w has been stopped", (&StoppedError{WatcherID: "w"}).Error())
}
