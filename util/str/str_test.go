package str

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashcode(t *testing.T) {
	assert.Equal(t, int32(96354), Hashcode("abc"))
	assert.Equal(t, int32(0), Hashcode(""))
}

func TestHashMode(t *testing.T) {
	assert.Equal(t, 96354%4, HashMode("abc", 4))
	assert.Equal(t, 0, HashMode("abc", 0))
	for _, s := range []string{"foo", "bar", "a-much-longer-key-that-overflows-int32"} {
		m := HashMode(s, 7)
		assert.GreaterOrEqual(t, m, 0)
		assert.Less(t, m, 7)
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "t_order", Fold("T_Order"))
	assert.True(t, EqualFold("USER_ID", "user_id"))
	assert.False(t, EqualFold("user", "users"))
}

func TestTrailingNumber(t *testing.T) {
	n, ok := TrailingNumber("t_order_12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	_, ok = TrailingNumber("t_order")
	assert.False(t, ok)
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		quote byte
	}{
		{"`t_order`", "t_order", '`'},
		{`"t_order"`, "t_order", '"'},
		{"[t_order]", "t_order", '['},
		{"t_order", "t_order", 0},
		{"`t_order", "`t_order", 0},
	}
	for _, tt := range tests {
		got, q := Unquote(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.quote, q, tt.in)
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "12", ToString(12))
	assert.Equal(t, "12", ToString(int64(12)))
	assert.Equal(t, "12", ToString(float64(12)))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "abc", ToString([]byte("abc")))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "", ToString(nil))
}
