package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_NotifyInRegistrationOrder(t *testing.T) {
	var r Registry[int]
	var calls []string

	r.Register(func(v int) { calls = append(calls, "first") })
	r.Register(func(v int) { calls = append(calls, "second") })
	r.Register(func(v int) { calls = append(calls, "third") })

	r.Notify(1)

	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestRegistry_Unregister(t *testing.T) {
	var r Registry[string]
	var got []string

	h1 := r.Register(func(v string) { got = append(got, "a:"+v) })
	r.Register(func(v string) { got = append(got, "b:"+v) })

	r.Notify("x")
	h1.Unregister()
	r.Notify("y")

	assert.Equal(t, []string{"a:x", "b:x", "b:y"}, got)
	assert.Equal(t, 1, r.Len())

	// Повторная отписка безопасна
	h1.Unregister()
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnregisterFromCallback(t *testing.T) {
	var r Registry[int]
	count := 0

	var h Handle
	h = r.Register(func(v int) {
		count++
		h.Unregister()
	})

	r.Notify(1)
	r.Notify(2)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, r.Len())
}

func TestHandle_ZeroValue(t *testing.T) {
	var h Handle
	assert.NotPanics(t, h.Unregister)
}

func TestOrdered_FlushDeliversInQueueOrder(t *testing.T) {
	var o Ordered[int]
	var got []int

	o.Register(func(v int) { got = append(got, v) })

	o.Queue(1)
	o.Queue(2)
	assert.Empty(t, got, "nothing is delivered before Flush")

	o.Flush()
	assert.Equal(t, []int{1, 2}, got)

	o.Flush()
	assert.Equal(t, []int{1, 2}, got)
}

func TestOrdered_ReentrantQueue(t *testing.T) {
	var o Ordered[int]
	var got []int

	o.Register(func(v int) {
		got = append(got, v)
		if v < 3 {
			// Наблюдатель порождает новое изменение во время доставки
			o.Queue(v + 1)
			o.Flush()
			got = append(got, -v)
		}
	})

	o.Queue(1)
	o.Flush()

	// Вложенный Flush не доставляет сам, порядок сохраняется
	assert.Equal(t, []int{1, -1, 2, -2, 3}, got)
}
