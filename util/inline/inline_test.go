package inline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       []string
	}{
		{"plain", "ds_0.t_order", []string{"ds_0.t_order"}},
		{"range", "t_order_${0..2}", []string{"t_order_0", "t_order_1", "t_order_2"}},
		{"cartesian", "ds_${0..1}.t_order_${0..1}", []string{"ds_0.t_order_0", "ds_0.t_order_1", "ds_1.t_order_0", "ds_1.t_order_1"}},
		{"list", "ds_${['a', 'b']}.t", []string{"ds_a.t", "ds_b.t"}},
		{"groovy arrow", "ds_$->{0..1}", []string{"ds_0", "ds_1"}},
		{"comma separated", "ds_0.t_${[0,1]}, ds_1.t_2", []string{"ds_0.t_0", "ds_0.t_1", "ds_1.t_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandErrors(t *testing.T) {
	_, err := Expand("t_${0..")
	assert.Error(t, err)

	_, err = Expand("t_${3..1}")
	assert.Error(t, err)

	_, err = Expand("t_${a..1}")
	assert.Error(t, err)
}

func TestIsInline(t *testing.T) {
	assert.True(t, IsInline("t_${0..1}"))
	assert.True(t, IsInline("t_$->{0..1}"))
	assert.False(t, IsInline("t_order"))
}
