package main

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// handleCalculate expects a structpb.Struct {operation, a, b} and answers
// with {result} or {error}. Arithmetic errors are part of the response;
// only undecodable requests fail the call.
func handleCalculate(ctx context.Context, payload []byte) ([]byte, error) {
	var req structpb.Struct
	if err := proto.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid calculate request: %w", err)
	}
	fields := req.GetFields()
	a := fields["a"].GetNumberValue()
	b := fields["b"].GetNumberValue()

	resp := map[string]any{}
	switch op := fields["operation"].GetStringValue(); op {
	case "add":
		resp["result"] = a + b
	case "subtract":
		resp["result"] = a - b
	case "multiply":
		resp["result"] = a * b
	case "divide":
		if b == 0 {
			resp["error"] = "division by zero is not allowed"
		} else {
			resp["result"] = a / b
		}
	default:
		resp["error"] = fmt.Sprintf("unsupported operation: %s", op)
	}

	out, err := structpb.NewStruct(resp)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(out)
}
