package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecover_ReportsPanic(t *testing.T) {
	var got any
	func() {
		defer Recover("test", func(r any) { got = r })
		panic("boom")
	}()
	assert.Equal(t, "boom", got)
}

func TestSliceHelpers(t *testing.T) {
	ids := []int64{3, 1, 3, 0, 2}
	assert.Equal(t, []int64{3, 1, 0, 2}, SliceUnique(ids))
	assert.Equal(t, []int64{3, 1, 3, 2}, SliceFilter(ids, func(_ int, id int64) bool { return id > 0 }))
	assert.Equal(t, []int64{6, 2, 6, 0, 4}, SliceMap(ids, func(_ int, id int64) int64 { return id * 2 }))
	assert.True(t, SliceContains(ids, 2))
	assert.False(t, SliceContains(ids, 9))
}
