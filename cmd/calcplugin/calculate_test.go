package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func calculate(t *testing.T, op string, a, b float64) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"operation": op, "a": a, "b": b})
	require.NoError(t, err)
	data, err := proto.Marshal(req)
	require.NoError(t, err)

	out, err := handleCalculate(context.Background(), data)
	require.NoError(t, err)

	var resp structpb.Struct
	require.NoError(t, proto.Unmarshal(out, &resp))
	return &resp
}

func TestHandleCalculate(t *testing.T) {
	tests := []struct {
		op   string
		want float64
	}{
		{"add", 5},
		{"subtract", 1},
		{"multiply", 6},
		{"divide", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			resp := calculate(t, tt.op, 3, 2)
			assert.Equal(t, tt.want, resp.GetFields()["result"].GetNumberValue())
		})
	}
}

func TestHandleCalculate_Errors(t *testing.T) {
	resp := calculate(t, "divide", 1, 0)
	assert.Equal(t, "division by zero is not allowed", resp.GetFields()["error"].GetStringValue())

	resp = calculate(t, "pow", 1, 2)
	assert.Contains(t, resp.GetFields()["error"].GetStringValue(), "unsupported operation")

	_, err := handleCalculate(context.Background(), []byte{0xff, 0xff})
	assert.Error(t, err)
}
