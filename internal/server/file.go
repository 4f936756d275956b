// Copyright 2025 Joseph Cumines
//
// File tool handlers

package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
	"go.uber.org/zap"
)

// defaultSaveTimeout bounds file_save when no timeout is given.
const defaultSaveTimeout = 15 * time.Second

// fileNameEditID is the automation id of the file name box of the common
// Save As dialog.
const fileNameEditID = "1001"

type fileSaveArgs struct {
	Target    string `json:"target" jsonschema:"minLength=1" jsonschema_description:"Window whose document to save (handle, pid:N or title)"`
	Path      string `json:"path" jsonschema:"minLength=1" jsonschema_description:"File name or full path; relative names are saved in the Documents folder"`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema_description:"Replace the file if it already exists"`
	TimeoutMs int    `json:"timeoutMs,omitempty" jsonschema:"minimum=0,maximum=600000" jsonschema_description:"How long the save may take, in milliseconds (default 15000)"`
}

func (a fileSaveArgs) Validate() error {
	if _, err := targetReference(a.Target); err != nil {
		return err
	}
	p := strings.TrimSpace(a.Path)
	if p == "" {
		return desktop.InvalidArgumentf("path", "path is required")
	}
	if strings.ContainsAny(p, `*?"<>|`) {
		return desktop.InvalidArgumentf("path", "path %q contains characters that are not allowed in file names", p)
	}
	return nil
}

func (a fileSaveArgs) Budget() time.Duration {
	return milliseconds(a.TimeoutMs, defaultSaveTimeout) + waitGrace
}

// saveResult is the structured result of file_save.
type saveResult struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Handle      desktop.Handle `json:"handle"`
	Overwritten bool           `json:"overwritten,omitempty"`
}

// handleFileSave handles the file_save tool. It drives the application's
// Save As dialog: open it, enter the path, confirm, and handle the overwrite
// prompt or error message box that may follow.
func (s *MCPServer) handleFileSave(ctx context.Context, args fileSaveArgs) (*Output, error) {
	ref, err := targetReference(args.Target)
	if err != nil {
		return nil, err
	}
	w, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(args.Path)
	timeout := milliseconds(args.TimeoutMs, defaultSaveTimeout)

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	timedOut := func(err error, format string, a ...any) error {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return desktop.Timeoutf(format, a...)
		}
		return err
	}

	dlg, err := s.saveAsDialog(sctx, w)
	if err != nil {
		return nil, timedOut(err, "the Save As dialog of %s did not appear within %v", windowSummary(w), timeout)
	}

	root, err := s.desk.ElementTree(sctx, dlg.Handle)
	if err != nil {
		return nil, err
	}
	edit, ok := findElement(root, func(el desktop.Element) bool {
		return el.AutomationID == fileNameEditID || strings.EqualFold(el.Name, "File name:")
	})
	if !ok {
		s.dismiss(ctx, dlg)
		return nil, desktop.DialogErrorf("dialog %q of %s has no file name box", dlg.Title, windowSummary(w))
	}
	if err := s.desk.SetElementValue(sctx, dlg.Handle, edit.ID, path); err != nil {
		s.dismiss(ctx, dlg)
		return nil, err
	}
	if err := s.pressDialogButton(sctx, dlg, "Save", "1"); err != nil {
		s.dismiss(ctx, dlg)
		return nil, err
	}

	overwritten := false
	for {
		prompt, err := s.awaitDialogOutcome(sctx, dlg)
		if err != nil {
			s.dismiss(ctx, dlg)
			return nil, timedOut(err, "saving %s did not finish within %v", path, timeout)
		}
		if prompt == nil {
			break
		}

		tree, err := s.desk.ElementTree(sctx, prompt.Handle)
		if err != nil {
			return nil, err
		}
		if _, confirm := findElement(tree, buttonNamed("Yes", "6")); confirm {
			if !args.Overwrite || overwritten {
				if err := s.pressDialogButton(sctx, *prompt, "No", "7"); err != nil {
					return nil, err
				}
				s.dismiss(ctx, dlg)
				return nil, desktop.DialogErrorf("%s already exists; set overwrite=true to replace it", path)
			}
			if err := s.pressDialogButton(sctx, *prompt, "Yes", "6"); err != nil {
				return nil, err
			}
			overwritten = true
			continue
		}

		text := s.dialogText(sctx, *prompt)
		if err := s.pressDialogButton(sctx, *prompt, "OK", "2"); err != nil {
			return nil, err
		}
		s.dismiss(ctx, dlg)
		if text == "" {
			text = prompt.Title
		}
		return nil, desktop.DialogErrorf("saving %s failed: %s", path, text)
	}

	saved, err := s.desk.GetWindow(ctx, w.Handle)
	if err != nil {
		return nil, err
	}
	res := saveResult{Path: path, Title: saved.Title, Handle: saved.Handle, Overwritten: overwritten}
	if overwritten {
		return textOutput(res, "Saved %s as %s, replacing the existing file (window is now %q)", windowSummary(w), path, saved.Title), nil
	}
	return textOutput(res, "Saved %s as %s (window is now %q)", windowSummary(w), path, saved.Title), nil
}

// isSaveAs reports whether dlg looks like a Save As dialog.
func (s *MCPServer) isSaveAs(ctx context.Context, dlg desktop.Window) bool {
	if strings.EqualFold(dlg.Title, "Save As") {
		return true
	}
	root, err := s.desk.ElementTree(ctx, dlg.Handle)
	if err != nil {
		return false
	}
	_, ok := findElement(root, func(el desktop.Element) bool { return el.AutomationID == fileNameEditID })
	return ok
}

// saveAsDialog activates w, opens its Save As dialog and waits for it. A
// Save As dialog that is already open is reused.
func (s *MCPServer) saveAsDialog(ctx context.Context, w desktop.Window) (desktop.Window, error) {
	find := func(ctx context.Context) (*desktop.Window, error) {
		owned, err := s.ownedWindows(ctx, w.Handle)
		if err != nil {
			return nil, err
		}
		for _, o := range owned {
			if s.isSaveAs(ctx, o) {
				return &o, nil
			}
		}
		return nil, nil
	}

	dlg, err := find(ctx)
	if err != nil {
		return desktop.Window{}, err
	}
	if dlg != nil {
		return *dlg, nil
	}
	if _, err := s.activate(ctx, w); err != nil {
		return desktop.Window{}, err
	}
	chord, err := desktop.ParseKeyChord("ctrl+shift+s")
	if err != nil {
		return desktop.Window{}, err
	}
	if err := s.desk.PressKeys(ctx, chord); err != nil {
		return desktop.Window{}, err
	}

	err = wait.PollUntilContext(ctx, s.waits.Interval(), func(ctx context.Context) (bool, error) {
		if _, err := s.desk.GetWindow(ctx, w.Handle); err != nil {
			return false, err
		}
		var err error
		dlg, err = find(ctx)
		return dlg != nil, err
	})
	if err != nil {
		return desktop.Window{}, err
	}
	return *dlg, nil
}

// awaitDialogOutcome polls until dlg is destroyed, returning nil, or until
// it shows an owned prompt, returning the prompt.
func (s *MCPServer) awaitDialogOutcome(ctx context.Context, dlg desktop.Window) (*desktop.Window, error) {
	var prompt *desktop.Window
	err := wait.PollUntilContext(ctx, s.waits.Interval(), func(ctx context.Context) (bool, error) {
		if _, err := s.desk.GetWindow(ctx, dlg.Handle); err != nil {
			if desktop.IsNotFound(err) {
				return true, nil
			}
			return false, err
		}
		owned, err := s.ownedWindows(ctx, dlg.Handle)
		if err != nil || len(owned) == 0 {
			return false, err
		}
		prompt = &owned[0]
		return true, nil
	})
	return prompt, err
}

// dismiss cancels dlg if it is still open, leaving the application as it
// was before the save. Failures are logged and otherwise ignored.
func (s *MCPServer) dismiss(ctx context.Context, dlg desktop.Window) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.desk.GetWindow(ctx, dlg.Handle); err != nil {
		return
	}
	if err := s.pressDialogButton(ctx, dlg, "Cancel", "2"); err != nil {
		s.logger.Warn("failed to dismiss dialog", zap.Stringer("dialog", dlg.Handle), zap.Error(err))
	}
}
