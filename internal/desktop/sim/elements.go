// Copyright 2025 Joseph Cumines
//
// Simulated accessibility tree

package sim

import (
	"context"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// ElementTree implements desktop.Elements.
func (d *Desktop) ElementTree(ctx context.Context, h desktop.Handle) (desktop.Element, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Element{}, err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return desktop.Element{}, err
	}
	if w.elevated {
		return desktop.Element{}, desktop.PermissionDeniedf("cannot read the UI of %s: the window belongs to an elevated process", d.describe(w))
	}
	w.root.name = w.title
	return d.element(w, w.root), nil
}

func (d *Desktop) element(w *window, n *node) desktop.Element {
	el := desktop.Element{
		ID:           n.id,
		ControlType:  n.controlType,
		Name:         n.name,
		Value:        n.text(w),
		AutomationID: n.automationID,
		Bounds:       w.abs(n.rel),
		Enabled:      w.enabled && !n.disabled,
		Focused:      d.fg == w.handle && w.focus == n,
	}
	for _, c := range n.children {
		el.Children = append(el.Children, d.element(w, c))
	}
	return el
}

// SetElementValue implements desktop.Elements for editable elements.
func (d *Desktop) SetElementValue(ctx context.Context, h desktop.Handle, elementID, value string) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	w, err := d.window(h)
	if err != nil {
		return err
	}
	if w.elevated {
		return desktop.PermissionDeniedf("cannot edit the UI of %s: the window belongs to an elevated process", d.describe(w))
	}
	n := w.nodeByID(elementID)
	if n == nil {
		return desktop.NotFoundf("element %s does not exist in window %v", elementID, h)
	}
	if !n.editable || n.disabled {
		return desktop.DriverErrorf("element %s (%s %q) does not support setting a value", elementID, n.controlType, n.name)
	}
	n.setText(w, value)
	w.selectAll = false
	w.retitle()
	return nil
}
