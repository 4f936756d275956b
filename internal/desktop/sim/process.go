// Copyright 2025 Joseph Cumines
//
// Simulated processes

package sim

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
)

// imageName reduces a program path or command to its lower-case image name,
// adding .exe when no extension is given.
func imageName(program string) string {
	p := strings.TrimSpace(strings.Trim(strings.TrimSpace(program), `"`))
	p = path.Base(strings.ReplaceAll(p, `\`, "/"))
	p = strings.ToLower(p)
	if path.Ext(p) == "" {
		p += ".exe"
	}
	return p
}

// StartProcess implements desktop.Processes. The main window appears after
// the app's startup delay. Packaged apps hand off to a host process and the
// launched process exits shortly after.
func (d *Desktop) StartProcess(ctx context.Context, spec desktop.LaunchSpec) (desktop.Process, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Process{}, err
	}
	defer d.mu.Unlock()
	p, err := d.start(spec, pidExplorer)
	if err != nil {
		return desktop.Process{}, err
	}
	return p.snapshot(), nil
}

func (d *Desktop) start(spec desktop.LaunchSpec, ppid int) (*process, error) {
	if strings.TrimSpace(spec.Program) == "" {
		return nil, desktop.InvalidArgumentf("programPath", "program path is empty")
	}
	exe := imageName(spec.Program)
	app := d.profile.app(exe)
	if app == nil {
		return nil, desktop.NotFoundf("the system cannot find the file specified: %s", spec.Program)
	}
	cmdline := app.Executable
	if len(spec.Args) > 0 {
		cmdline += " " + strings.Join(spec.Args, " ")
	}
	p := d.spawn(app.Executable, cmdline, ppid, app)
	args := append([]string(nil), spec.Args...)

	if app.Stub == nil {
		d.after(app.Startup, func() {
			if !p.exited {
				d.openApp(app, p.pid, 0, args)
			}
		})
		return p, nil
	}

	stub := app.Stub
	d.after(stub.ExitAfter, func() {
		host := d.host(stub.Host)
		worker := 0
		if stub.Worker != "" {
			worker = d.spawn(stub.Worker, stub.Worker+" -ServerName:App.AppXf0m5nzt0qf6fbexmh4cg2gt8sx6ekn09.mca", pidSvchost, app).pid
		}
		d.exit(p)
		remaining := app.Startup - stub.ExitAfter
		d.after(remaining, func() {
			if worker != 0 {
				if _, ok := d.liveProcess(worker); !ok {
					return
				}
			}
			d.openApp(app, host.pid, worker, args)
		})
	})
	return p, nil
}

func (p *process) snapshot() desktop.Process {
	return desktop.Process{
		PID:         p.pid,
		ParentPID:   p.ppid,
		Executable:  p.exe,
		CommandLine: p.cmdline,
		StartTime:   p.start,
	}
}

// GetProcess implements desktop.Processes.
func (d *Desktop) GetProcess(ctx context.Context, pid int) (desktop.Process, error) {
	if err := d.lock(ctx); err != nil {
		return desktop.Process{}, err
	}
	defer d.mu.Unlock()
	p, ok := d.liveProcess(pid)
	if !ok {
		return desktop.Process{}, desktop.NotFoundf("process %d is not running", pid)
	}
	return p.snapshot(), nil
}

// ListProcesses implements desktop.Processes, ordered by PID.
func (d *Desktop) ListProcesses(ctx context.Context) ([]desktop.Process, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	out := make([]desktop.Process, 0, len(d.procs))
	for _, p := range d.procs {
		if !p.exited {
			out = append(out, p.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}
