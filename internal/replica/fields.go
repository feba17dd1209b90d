package replica

import (
	"sort"
	"strconv"

	"plot-go/internal/plot"
)

func setString(m plot.SharedMap, key, value string) {
	if value != "" {
		m.Set(key, value)
	}
}

func getString(m plot.SharedMap, key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

func getInt(m plot.SharedMap, key string) (int, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func setIntPtr(m plot.SharedMap, key string, p *int) {
	if p != nil {
		m.Set(key, *p)
	}
}

func getIntPtr(m plot.SharedMap, key string) *int {
	n, ok := getInt(m, key)
	if !ok {
		return nil
	}
	return &n
}

// setIntList stores a non-nil list, even an empty one, so nil and empty
// survive the round trip distinctly.
func setIntList(m plot.SharedMap, key string, list []int) {
	if list == nil {
		return
	}
	arr := m.SetArray(key)
	for _, n := range list {
		arr.Push(n)
	}
}

func getIntList(m plot.SharedMap, key string) []int {
	arr := getArray(m, key)
	if arr == nil {
		return nil
	}
	out := make([]int, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		v, _ := arr.Get(i)
		if n, ok := toInt(v); ok {
			out = append(out, n)
		}
	}
	return out
}

func getMap(m plot.SharedMap, key string) plot.SharedMap {
	v, _ := m.Get(key)
	sm, _ := v.(plot.SharedMap)
	return sm
}

func getArray(m plot.SharedMap, key string) plot.SharedArray {
	v, _ := m.Get(key)
	sa, _ := v.(plot.SharedArray)
	return sa
}

// maps returns the map elements of arr in order, skipping anything else.
func maps(arr plot.SharedArray) []plot.SharedMap {
	if arr == nil {
		return nil
	}
	out := make([]plot.SharedMap, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		v, _ := arr.Get(i)
		if m, ok := v.(plot.SharedMap); ok {
			out = append(out, m)
		}
	}
	return out
}

// findByID returns the index and map of the element whose idKey equals id.
func findByID(arr plot.SharedArray, idKey, id string) (int, plot.SharedMap) {
	if arr == nil {
		return -1, nil
	}
	for i := 0; i < arr.Len(); i++ {
		v, _ := arr.Get(i)
		if m, ok := v.(plot.SharedMap); ok && getString(m, idKey) == id {
			return i, m
		}
	}
	return -1, nil
}

func yearKeys[V any](m map[int]V) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func yearKey(y int) string {
	return strconv.Itoa(y)
}
