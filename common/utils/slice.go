package utils

import (
	"github.com/duke-git/lancet/v2/slice"
)

// SliceContains 判断切片是否包含元素
func SliceContains[T comparable](s []T, item T) bool {
	return slice.Contain(s, item)
}

// SliceUnique 切片去重，保留首次出现的顺序
func SliceUnique[T comparable](s []T) []T {
	return slice.Unique(s)
}

// SliceFilter 过滤切片
func SliceFilter[T any](s []T, fn func(index int, item T) bool) []T {
	return slice.Filter(s, fn)
}

// SliceMap 映射切片
func SliceMap[T any, U any](s []T, fn func(index int, item T) U) []U {
	return slice.Map(s, fn)
}
