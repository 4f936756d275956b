// Copyright 2025 Joseph Cumines

package remote

import (
	"encoding/json"
	"fmt"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// request is the argument of every Struct method. Each method reads only the
// fields it needs.
type request struct {
	Spec      *desktop.LaunchSpec `json:"spec,omitempty"`
	Chord     *desktop.KeyChord   `json:"chord,omitempty"`
	Point     *desktop.Point      `json:"point,omitempty"`
	Rect      *desktop.Rect       `json:"rect,omitempty"`
	State     desktop.WindowState `json:"state,omitempty"`
	Button    desktop.MouseButton `json:"button,omitempty"`
	Text      string              `json:"text,omitempty"`
	ElementID string              `json:"elementId,omitempty"`
	Value     string              `json:"value,omitempty"`
	Handle    desktop.Handle      `json:"handle,omitempty"`
	PID       int                 `json:"processId,omitempty"`
	X         int                 `json:"x,omitempty"`
	Y         int                 `json:"y,omitempty"`
	Width     int                 `json:"width,omitempty"`
	Height    int                 `json:"height,omitempty"`
	Down      bool                `json:"down,omitempty"`
}

// response wraps every Struct result, as a Struct cannot hold a bare list.
type response[T any] struct {
	Value T `json:"value"`
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return st, nil
}

// fromStruct decodes st into v through its JSON form.
func fromStruct(st *structpb.Struct, v any) error {
	b, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
