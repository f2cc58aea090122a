package clock

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionIDIsAValidV4UUID(t *testing.T) {
	id := NewSessionID()
	assert.True(t, ValidSessionID(id))
	assert.Equal(t, strings.ToLower(id), id)
}

func TestValidSessionIDRejectsGarbage(t *testing.T) {
	assert.False(t, ValidSessionID("not-a-uuid"))
	assert.False(t, ValidSessionID(""))
}

func TestValidSessionIDRejectsUppercaseRendering(t *testing.T) {
	id := NewSessionID()
	assert.False(t, ValidSessionID(strings.ToUpper(id)))
}

func TestRealClockNowAdvances(t *testing.T) {
	var c Real
	first := c.Now()
	<-c.After(time.Millisecond)
	assert.True(t, c.Now().After(first) || c.Now().Equal(first))
}
