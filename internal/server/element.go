// Copyright 2025 Joseph Cumines
//
// Element tool handlers

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// defaultMaxResults caps ui_find results when maxResults is not given.
const defaultMaxResults = 50

// elementQuery selects elements within a target window. Every given filter
// must match.
type elementQuery struct {
	Target       string `json:"target" jsonschema:"minLength=1" jsonschema_description:"Window containing the element (handle, pid:N or title)"`
	ControlType  string `json:"controlType,omitempty" jsonschema_description:"Control type, e.g. Button, Edit, Document, MenuItem"`
	Text         string `json:"text,omitempty" jsonschema_description:"Case-insensitive substring of the element name or value"`
	ElementID    string `json:"elementId,omitempty" jsonschema_description:"Element id from a previous ui_find"`
	AutomationID string `json:"automationId,omitempty" jsonschema_description:"Exact automation id"`
}

func (q elementQuery) Validate() error {
	_, err := targetReference(q.Target)
	return err
}

func (q elementQuery) filtered() bool {
	return q.ControlType != "" || q.Text != "" || q.ElementID != "" || q.AutomationID != ""
}

func (q elementQuery) matches(el desktop.Element) bool {
	if q.ElementID != "" && el.ID != q.ElementID {
		return false
	}
	if q.AutomationID != "" && el.AutomationID != q.AutomationID {
		return false
	}
	if q.ControlType != "" && !strings.EqualFold(el.ControlType, q.ControlType) {
		return false
	}
	if q.Text != "" {
		t := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(el.Name), t) && !strings.Contains(strings.ToLower(el.Value), t) {
			return false
		}
	}
	return true
}

func (q elementQuery) String() string {
	var parts []string
	if q.ControlType != "" {
		parts = append(parts, "controlType="+q.ControlType)
	}
	if q.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", q.Text))
	}
	if q.ElementID != "" {
		parts = append(parts, "elementId="+q.ElementID)
	}
	if q.AutomationID != "" {
		parts = append(parts, "automationId="+q.AutomationID)
	}
	if len(parts) == 0 {
		return "any element"
	}
	return strings.Join(parts, ", ")
}

// search returns the elements below root that q matches, in tree order. The
// root itself is the window and is never returned.
func (q elementQuery) search(root desktop.Element, limit int) []desktop.Element {
	var out []desktop.Element
	root.Walk(func(el desktop.Element, depth int) bool {
		if depth > 0 && q.matches(el) {
			el.Children = nil
			out = append(out, el)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// best picks the element a click or edit most likely means: an exact name
// match beats a substring match, and a leaf control beats a container.
func (q elementQuery) best(root desktop.Element) (desktop.Element, bool) {
	var (
		found desktop.Element
		score = -1
	)
	root.Walk(func(el desktop.Element, depth int) bool {
		if depth == 0 || !q.matches(el) {
			return true
		}
		n := 0
		if q.Text != "" && strings.EqualFold(el.Name, q.Text) {
			n += 2
		}
		if len(el.Children) == 0 {
			n++
		}
		if n > score {
			found, score = el, n
		}
		return true
	})
	return found, score >= 0
}

// elementTree resolves target and reads its element tree.
func (s *MCPServer) elementTree(ctx context.Context, target string) (desktop.Window, desktop.Element, error) {
	ref, err := targetReference(target)
	if err != nil {
		return desktop.Window{}, desktop.Element{}, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return desktop.Window{}, desktop.Element{}, err
	}
	root, err := s.desk.ElementTree(ctx, w.Handle)
	if err != nil {
		return desktop.Window{}, desktop.Element{}, err
	}
	return w, root, nil
}

// elementLine is one line of an element listing.
func elementLine(el desktop.Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", el.ID, el.ControlType)
	if el.Name != "" {
		fmt.Fprintf(&b, " %q", el.Name)
	}
	if el.AutomationID != "" {
		fmt.Fprintf(&b, " [%s]", el.AutomationID)
	}
	fmt.Fprintf(&b, " at %s", boundsString(el.Bounds))
	if el.Value != "" {
		fmt.Fprintf(&b, " value=%q", truncateText(el.Value))
	}
	if !el.Enabled {
		b.WriteString(" (disabled)")
	}
	if el.Focused {
		b.WriteString(" (focused)")
	}
	return b.String()
}

// elementName describes an element in result text, e.g. Button "Save".
func elementName(el desktop.Element) string {
	if el.Name == "" {
		return el.ControlType + " " + el.ID
	}
	return fmt.Sprintf("%s %q", el.ControlType, el.Name)
}

type findArgs struct {
	elementQuery
	MaxResults int `json:"maxResults,omitempty" jsonschema:"minimum=0,maximum=1000" jsonschema_description:"Maximum number of elements to return (default 50)"`
}

// handleUIFind handles the ui_find tool
func (s *MCPServer) handleUIFind(ctx context.Context, args findArgs) (*Output, error) {
	w, root, err := s.elementTree(ctx, args.Target)
	if err != nil {
		return nil, err
	}
	limit := args.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	found := args.search(root, limit)
	if len(found) == 0 {
		return nil, desktop.NotFoundf("no element matching %s in window %s", args.elementQuery, windowSummary(w))
	}

	lines := make([]string, 0, len(found)+1)
	lines = append(lines, fmt.Sprintf("Found %d element(s) in window %s:", len(found), windowSummary(w)))
	for _, el := range found {
		lines = append(lines, "- "+elementLine(el))
	}
	return &Output{
		Data: map[string]any{"window": w.Handle.String(), "elements": found, "count": len(found)},
		Text: strings.Join(lines, "\n"),
	}, nil
}

// textItem is one piece of text read from a window.
type textItem struct {
	ElementID   string `json:"elementId"`
	ControlType string `json:"controlType"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value"`
}

// handleUIRead handles the ui_read tool
func (s *MCPServer) handleUIRead(ctx context.Context, args elementQuery) (*Output, error) {
	w, root, err := s.elementTree(ctx, args.Target)
	if err != nil {
		return nil, err
	}

	if args.filtered() {
		el, ok := args.best(root)
		if !ok {
			return nil, desktop.NotFoundf("no element matching %s in window %s", args, windowSummary(w))
		}
		value := el.Value
		if value == "" {
			value = el.Name
		}
		return textOutput(textItem{ElementID: el.ID, ControlType: el.ControlType, Name: el.Name, Value: value},
			"%s: %s", elementName(el), value), nil
	}

	var items []textItem
	root.Walk(func(el desktop.Element, depth int) bool {
		switch {
		case depth == 0:
		case el.Value != "":
			items = append(items, textItem{ElementID: el.ID, ControlType: el.ControlType, Name: el.Name, Value: el.Value})
		case strings.EqualFold(el.ControlType, "Text") && el.Name != "":
			items = append(items, textItem{ElementID: el.ID, ControlType: el.ControlType, Value: el.Name})
		}
		return true
	})
	lines := []string{fmt.Sprintf("Text of window %s:", windowSummary(w))}
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("- %s %s: %s", it.ElementID, it.ControlType, it.Value))
	}
	if len(items) == 0 {
		lines = append(lines, "(no text)")
	}
	return &Output{
		Data: map[string]any{"window": w.Handle.String(), "title": w.Title, "texts": items},
		Text: strings.Join(lines, "\n"),
	}, nil
}

type clickArgs struct {
	elementQuery
	Button     string `json:"button,omitempty" jsonschema:"enum=left,enum=right,enum=middle" jsonschema_description:"Mouse button (default left)"`
	ClickCount int    `json:"clickCount,omitempty" jsonschema:"minimum=0,maximum=3" jsonschema_description:"1 for a click, 2 for a double click"`
}

func (a clickArgs) Validate() error {
	if err := a.elementQuery.Validate(); err != nil {
		return err
	}
	if !a.filtered() {
		return desktop.InvalidArgumentf("text", "one of controlType, text, elementId or automationId is required")
	}
	return nil
}

// locate activates w and finds the element q selects in its current tree,
// so that the returned bounds are where the element is now.
func (s *MCPServer) locate(ctx context.Context, w desktop.Window, q elementQuery) (desktop.Window, desktop.Element, error) {
	aw, err := s.activate(ctx, w)
	if err != nil {
		return desktop.Window{}, desktop.Element{}, err
	}
	root, err := s.desk.ElementTree(ctx, aw.Handle)
	if err != nil {
		return desktop.Window{}, desktop.Element{}, err
	}
	el, ok := q.best(root)
	if !ok {
		return desktop.Window{}, desktop.Element{}, desktop.NotFoundf("no element matching %s in window %s", q, windowSummary(aw))
	}
	if !el.Enabled {
		return desktop.Window{}, desktop.Element{}, desktop.DriverErrorf("%s in window %s is disabled", elementName(el), windowSummary(aw))
	}
	if el.Bounds.Empty() {
		return desktop.Window{}, desktop.Element{}, desktop.DriverErrorf("%s in window %s has no area to click", elementName(el), windowSummary(aw))
	}
	return aw, el, nil
}

// handleUIClick handles the ui_click tool
func (s *MCPServer) handleUIClick(ctx context.Context, args clickArgs) (*Output, error) {
	ref, err := targetReference(args.Target)
	if err != nil {
		return nil, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	w, el, err := s.locate(ctx, w, args.elementQuery)
	if err != nil {
		return nil, err
	}

	button := desktop.ButtonLeft
	if args.Button != "" {
		button = desktop.MouseButton(args.Button)
	}
	p := el.Bounds.Center()
	if err := s.click(ctx, p, button, max(args.ClickCount, 1)); err != nil {
		return nil, err
	}
	el.Children = nil
	return textOutput(map[string]any{"window": w.Handle.String(), "element": el, "x": p.X, "y": p.Y},
		"Clicked %s at %s in window %s", elementName(el), p, windowSummary(w)), nil
}

type typeArgs struct {
	Target      string `json:"target" jsonschema:"minLength=1" jsonschema_description:"Window containing the element (handle, pid:N or title)"`
	Text        string `json:"text" jsonschema_description:"Text to enter"`
	Name        string `json:"name,omitempty" jsonschema_description:"Case-insensitive substring of the element name"`
	ControlType string `json:"controlType,omitempty" jsonschema_description:"Control type, e.g. Edit or Document"`
	ElementID   string `json:"elementId,omitempty" jsonschema_description:"Element id from a previous ui_find"`
	Clear       bool   `json:"clear,omitempty" jsonschema_description:"Replace the current value instead of appending"`
}

func (a typeArgs) Validate() error {
	_, err := targetReference(a.Target)
	return err
}

// query selects the element to type into. Without filters, the first
// editable control is used.
func (a typeArgs) query() elementQuery {
	return elementQuery{Target: a.Target, ControlType: a.ControlType, Text: a.Name, ElementID: a.ElementID}
}

func editable(el desktop.Element) bool {
	switch strings.ToLower(el.ControlType) {
	case "edit", "document", "combobox":
		return true
	}
	return false
}

// handleUIType handles the ui_type tool
func (s *MCPServer) handleUIType(ctx context.Context, args typeArgs) (*Output, error) {
	ref, err := targetReference(args.Target)
	if err != nil {
		return nil, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	q := args.query()
	if !q.filtered() {
		root, err := s.desk.ElementTree(ctx, w.Handle)
		if err != nil {
			return nil, err
		}
		el, ok := findElement(root, func(el desktop.Element) bool { return el.ID != root.ID && editable(el) })
		if !ok {
			return nil, desktop.NotFoundf("window %s has no editable element", windowSummary(w))
		}
		q.ElementID = el.ID
	}

	w, el, err := s.locate(ctx, w, q)
	if err != nil {
		return nil, err
	}

	if args.Clear {
		if err := s.desk.SetElementValue(ctx, w.Handle, el.ID, args.Text); err != nil {
			return nil, err
		}
	} else {
		if err := s.click(ctx, el.Bounds.Center(), desktop.ButtonLeft, 1); err != nil {
			return nil, err
		}
		if err := s.desk.TypeText(ctx, args.Text); err != nil {
			return nil, err
		}
	}

	value := args.Text
	if root, err := s.desk.ElementTree(ctx, w.Handle); err == nil {
		if now, ok := root.Find(el.ID); ok {
			value = now.Value
		}
	}
	verb := "Typed"
	if args.Clear {
		verb = "Set"
	}
	return textOutput(map[string]any{"window": w.Handle.String(), "elementId": el.ID, "value": value},
		"%s %q into %s in window %s", verb, truncateText(args.Text), elementName(el), windowSummary(w)), nil
}
