// Copyright 2025 Joseph Cumines
//
// Simulated common dialogs: Save As, save and overwrite prompts, message
// boxes and the Run dialog

package sim

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
)

const dialogClass = "#32770"

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// dialog creates an owned modal dialog centered on its owner.
func (d *Desktop) dialog(owner *window, r role, title string, width, height int) *window {
	ob := d.primaryMonitor().WorkArea
	pid := pidExplorer
	if owner != nil {
		ob = owner.bounds
		pid = owner.pid
	}
	w := &window{
		title:        title,
		class:        dialogClass,
		role:         r,
		pid:          pid,
		visible:      true,
		enabled:      true,
		responsiveAt: d.now(),
		bounds: desktop.Rect{
			X:      ob.X + (ob.Width-width)/2,
			Y:      ob.Y + (ob.Height-height)/2,
			Width:  width,
			Height: height,
		},
	}
	if owner != nil {
		w.owner = owner.handle
	}
	d.add(w)
	w.root = w.newNode("Window", title, desktop.Rect{Width: width, Height: height})
	return w
}

func (d *Desktop) addText(w *window, text string, rel desktop.Rect) *node {
	n := w.appendNode(w.root, w.newNode("Text", text, rel))
	n.value = text
	return n
}

func (d *Desktop) addButton(w *window, name, automationID string, rel desktop.Rect, action func()) *node {
	n := w.appendNode(w.root, w.newNode("Button", name, rel))
	n.automationID = automationID
	n.action = action
	return n
}

func (d *Desktop) addEdit(w *window, name, automationID, value string, rel desktop.Rect) *node {
	n := w.appendNode(w.root, w.newNode("Edit", name, rel))
	n.automationID = automationID
	n.editable = true
	n.value = value
	return n
}

// defaultButton presses the dialog's default button, as Enter does.
func (d *Desktop) defaultButton(w *window) {
	var names []string
	switch w.role {
	case roleSaveAs:
		names = []string{"Save"}
	case roleConfirmClose:
		names = []string{"Save"}
	case roleConfirmOverwrite:
		names = []string{"No"}
	case roleRun:
		names = []string{"OK"}
	default:
		names = []string{"OK", "Yes"}
	}
	for _, name := range names {
		if b := w.button(name); b != nil && b.action != nil {
			b.action()
			return
		}
	}
}

// save saves the document of main. Without a path, or when forced, the Save
// As dialog is shown after the dialog delay. done runs after a successful
// save.
func (d *Desktop) save(main *window, saveAs bool, done func()) {
	if main.doc == nil || main.destroyed {
		return
	}
	if !saveAs && main.doc.path != "" {
		if err := d.write(main, main.doc.path); err != nil {
			d.message(main, "Save", fmt.Sprintf("%s\n%s", main.doc.path, describeWriteError(err)))
			return
		}
		if done != nil {
			done()
		}
		return
	}
	for _, o := range d.windows {
		if o.owner == main.handle && o.role == roleSaveAs {
			d.raise(o)
			return
		}
	}
	if main.doc.saveAsPending {
		return
	}
	main.doc.saveAsPending = true
	d.after(d.profile.DialogDelay, func() {
		main.doc.saveAsPending = false
		if main.destroyed {
			return
		}
		d.openSaveAs(main, done)
	})
}

func (d *Desktop) openSaveAs(main *window, done func()) {
	ext := main.app.Extension
	name := "*" + ext
	if main.doc.path != "" {
		name = filepath.Base(main.doc.path)
	}
	w := d.dialog(main, roleSaveAs, "Save As", 640, 420)
	w.cancel = func() { d.destroy(w) }
	fileName := d.addEdit(w, "File name:", "1001", name, desktop.Rect{X: 110, Y: 320, Width: 400, Height: 24})
	saveType := "Text Documents (*.txt)"
	if main.app.Document == docCanvas {
		saveType = "PNG (*.png)"
	}
	typeBox := w.appendNode(w.root, w.newNode("ComboBox", "Save as type:", desktop.Rect{X: 110, Y: 350, Width: 400, Height: 24}))
	typeBox.automationID = "FileTypeControlHost"
	typeBox.value = saveType
	d.addButton(w, "Save", "1", desktop.Rect{X: 430, Y: 384, Width: 90, Height: 26}, func() {
		d.commitSaveAs(main, w, fileName.value, done)
	})
	d.addButton(w, "Cancel", "2", desktop.Rect{X: 530, Y: 384, Width: 90, Height: 26}, w.cancel)
	w.focus = fileName
	w.selectAll = true
}

func (d *Desktop) resolvePath(name, ext string) string {
	p := strings.TrimSpace(strings.Trim(strings.TrimSpace(name), `"`))
	if !filepath.IsAbs(p) {
		dir := d.profile.DocumentsDir
		if dir == "" {
			dir = os.TempDir()
		}
		p = filepath.Join(dir, p)
	}
	if filepath.Ext(p) == "" {
		p += ext
	}
	return p
}

func (d *Desktop) commitSaveAs(main, dlg *window, name string, done func()) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "*?") {
		return
	}
	target := d.resolvePath(name, main.app.Extension)
	if _, err := os.Stat(target); err == nil {
		d.confirmOverwrite(main, dlg, target, done)
		return
	}
	d.finishSave(main, dlg, target, done)
}

func (d *Desktop) finishSave(main, dlg *window, target string, done func()) {
	if err := d.write(main, target); err != nil {
		d.logger.Debug("save failed", zap.String("path", target), zap.Error(err))
		d.message(dlg, "Save As", fmt.Sprintf("%s\n%s", target, describeWriteError(err)))
		return
	}
	d.destroy(dlg)
	if done != nil {
		done()
	}
}

func (d *Desktop) confirmOverwrite(main, dlg *window, target string, done func()) {
	w := d.dialog(dlg, roleConfirmOverwrite, "Confirm Save As", 420, 160)
	w.cancel = func() { d.destroy(w) }
	d.addText(w, fmt.Sprintf("%s already exists.\nDo you want to replace it?", filepath.Base(target)),
		desktop.Rect{X: 60, Y: 40, Width: 340, Height: 48})
	d.addButton(w, "Yes", "6", desktop.Rect{X: 210, Y: 118, Width: 90, Height: 26}, func() {
		d.destroy(w)
		d.finishSave(main, dlg, target, done)
	})
	d.addButton(w, "No", "7", desktop.Rect{X: 310, Y: 118, Width: 90, Height: 26}, w.cancel)
}

// message shows a message box with a single OK button.
func (d *Desktop) message(owner *window, title, text string) {
	w := d.dialog(owner, roleMessage, title, 420, 160)
	w.cancel = func() { d.destroy(w) }
	d.addText(w, text, desktop.Rect{X: 60, Y: 40, Width: 340, Height: 48})
	d.addButton(w, "OK", "2", desktop.Rect{X: 310, Y: 118, Width: 90, Height: 26}, w.cancel)
}

func describeWriteError(err error) string {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return "Access is denied."
	case errors.Is(err, fs.ErrNotExist):
		return "Path does not exist.\nCheck the path and try again."
	default:
		return err.Error()
	}
}

// write stores the document at target and marks it saved.
func (d *Desktop) write(main *window, target string) error {
	var data []byte
	switch main.app.Document {
	case docCanvas:
		var buf bytes.Buffer
		if err := png.Encode(&buf, renderCanvas(main)); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		data = []byte(strings.ReplaceAll(main.doc.text, "\n", "\r\n"))
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return err
	}
	main.doc.path = target
	main.doc.dirty = false
	main.retitle()
	d.logger.Debug("document saved", zap.Stringer("window", main.handle), zap.String("path", target))
	return nil
}

// confirmClose asks whether to save before closing main.
func (d *Desktop) confirmClose(main *window) {
	for _, o := range d.windows {
		if o.owner == main.handle && o.role == roleConfirmClose {
			d.raise(o)
			return
		}
	}
	w := d.dialog(main, roleConfirmClose, main.app.Name, 440, 170)
	w.cancel = func() { d.destroy(w) }
	d.addText(w, fmt.Sprintf("Do you want to save changes to %s?", main.documentName()),
		desktop.Rect{X: 24, Y: 44, Width: 392, Height: 40})
	d.addButton(w, "Save", "CommandButton_6", desktop.Rect{X: 120, Y: 126, Width: 90, Height: 28}, func() {
		d.destroy(w)
		d.save(main, false, func() { d.destroy(main) })
	})
	d.addButton(w, "Don't Save", "CommandButton_7", desktop.Rect{X: 220, Y: 126, Width: 100, Height: 28}, func() {
		d.destroy(main)
	})
	d.addButton(w, "Cancel", "CommandButton_2", desktop.Rect{X: 330, Y: 126, Width: 90, Height: 28}, w.cancel)
}

// openRun shows the shell's Run dialog.
func (d *Desktop) openRun() {
	for _, o := range d.windows {
		if o.role == roleRun {
			d.raise(o)
			return
		}
	}
	w := d.dialog(nil, roleRun, "Run", 400, 210)
	wa := d.primaryMonitor().WorkArea
	w.bounds.X, w.bounds.Y = wa.X+12, wa.Y+wa.Height-w.bounds.Height-12
	w.cancel = func() { d.destroy(w) }
	d.addText(w, "Type the name of a program, folder, document, or Internet resource, and Windows will open it for you.",
		desktop.Rect{X: 60, Y: 40, Width: 320, Height: 40})
	open := d.addEdit(w, "Open:", "12298", "", desktop.Rect{X: 60, Y: 100, Width: 320, Height: 24})
	d.addButton(w, "OK", "1", desktop.Rect{X: 110, Y: 170, Width: 80, Height: 26}, func() {
		cmd := strings.TrimSpace(open.value)
		if cmd == "" {
			return
		}
		program, rest, _ := strings.Cut(cmd, " ")
		var args []string
		if rest = strings.TrimSpace(rest); rest != "" {
			args = strings.Fields(rest)
		}
		d.destroy(w)
		if _, err := d.start(desktop.LaunchSpec{Program: program, Args: args}, pidExplorer); err != nil {
			d.message(nil, program, fmt.Sprintf("Windows cannot find '%s'. Make sure you typed the name correctly, and then try again.", program))
		}
	})
	d.addButton(w, "Cancel", "2", desktop.Rect{X: 200, Y: 170, Width: 80, Height: 26}, w.cancel)
	d.addButton(w, "Browse...", "12288", desktop.Rect{X: 290, Y: 170, Width: 80, Height: 26}, nil)
	w.focus = open
}
