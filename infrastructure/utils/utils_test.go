package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty("   "))
	assert.False(t, IsEmpty("x"))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "  ", "b", "c"))
	assert.Equal(t, "", Coalesce("", "  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "he...", Truncate("hello world", 5))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.00m", FormatDuration(2*time.Minute))
	assert.Equal(t, "3.00h", FormatDuration(3*time.Hour))
	assert.Equal(t, "2.00d", FormatDuration(48*time.Hour))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "c"))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
}

func TestFilter(t *testing.T) {
	out := Filter([]string{"a", "bb", "ccc"}, func(s string) bool { return len(s) > 1 })
	assert.Equal(t, []string{"bb", "ccc"}, out)
}

func TestPtr(t *testing.T) {
	p := Ptr(5)
	assert.Equal(t, 5, *p)
}

func TestSliceToMap(t *testing.T) {
	m := SliceToMap([]string{"a", "bb"}, func(s string) int { return len(s) })
	assert.Equal(t, "a", m[1])
	assert.Equal(t, "bb", m[2])
}

func TestMapKeys(t *testing.T) {
	keys := MapKeys(map[string]int{"a": 1, "b": 2})
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestSafeGo(t *testing.T) {
	done := make(chan error, 1)
	SafeGo(func() {
		panic("boom")
	}, func(err error) {
		done <- err
	})
	recovered := <-done
	assert.Error(t, recovered)
}
