package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"servisca-quickmatch/internal/config"
	"servisca-quickmatch/internal/log"
	"servisca-quickmatch/internal/stream"
	"servisca-quickmatch/internal/tasks"
)

// App wires the creation form to three independent event panels: the
// current task, the current user and a free-topic tester
type App struct {
	ctx       context.Context
	cfg       *config.Client
	logger    *slog.Logger
	initiator *tasks.Initiator

	Task   *stream.Watcher
	User   *stream.Watcher
	Tester *stream.Watcher

	mu      sync.Mutex
	form    tasks.Form
	message string
}

func NewApp(ctx context.Context, cfg *config.Client, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}

	sub := stream.NewSubscriber(cfg.Origin(),
		stream.WithPingInterval(cfg.PingInterval),
		stream.WithLogger(logger),
	)
	a := &App{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		Task:   stream.NewWatcher(ctx, sub),
		User:   stream.NewWatcher(ctx, sub),
		Tester: stream.NewWatcher(ctx, sub),
		form: tasks.Form{
			UserID:   cfg.UserID,
			Category: cfg.Category,
			Lat:      cfg.Lat,
			Lng:      cfg.Lng,
		},
	}
	client := tasks.NewClient(cfg.Origin(), tasks.WithClientLogger(logger))
	a.initiator = tasks.NewInitiator(client, a.Task, logger)

	if err := a.User.SetTopic(tasks.UserTopic(cfg.UserID)); err != nil {
		return nil, err
	}
	if err := a.Tester.SetTopic(cfg.TesterTopic); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Exec applies one operator input line. It reports true for quit
func (a *App) Exec(line string) bool {
	cmd, err := ParseCommand(line)
	if err != nil {
		a.logger.Debug("bad command", slog.String("line", line), log.Error(err))
		a.say(err.Error())
		return false
	}

	switch cmd.Kind {
	case CmdLat:
		a.edit(func(f *tasks.Form) { f.Lat = cmd.Arg })
	case CmdLng:
		a.edit(func(f *tasks.Form) { f.Lng = cmd.Arg })
	case CmdCategory:
		a.edit(func(f *tasks.Form) { f.Category = cmd.Arg })
	case CmdUser:
		a.edit(func(f *tasks.Form) { f.UserID = cmd.Arg })
		if err := a.User.SetTopic(tasks.UserTopic(cmd.Arg)); err != nil {
			a.say("user panel: " + err.Error())
		}
	case CmdMatch:
		a.Match()
	case CmdTopic:
		if err := a.Tester.SetTopic(cmd.Arg); err != nil {
			a.say("tester: " + err.Error())
		}
	case CmdHelp:
		a.say(helpText)
	case CmdQuit:
		return true
	}
	return false
}

// Match fires one creation request with the current form
func (a *App) Match() <-chan tasks.Attempt {
	a.mu.Lock()
	form := a.form
	a.message = ""
	a.mu.Unlock()
	return a.initiator.Start(a.ctx, form)
}

func (a *App) Snapshot() ViewModel {
	a.mu.Lock()
	form, msg := a.form, a.message
	a.mu.Unlock()

	return ViewModel{
		Now:     time.Now(),
		Backend: a.cfg.Origin(),
		Form:    form,
		Attempt: a.initiator.Last(),
		Message: msg,
		Task:    panelOf("Task events", a.Task),
		User:    panelOf("User events", a.User),
		Tester:  panelOf("WebSocket tester", a.Tester),
	}
}

// Close tears down every panel's subscription
func (a *App) Close() error {
	return errors.Join(a.Task.Close(), a.User.Close(), a.Tester.Close())
}

func (a *App) edit(fn func(*tasks.Form)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.form)
	a.message = ""
}

func (a *App) say(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.message = msg
}

// Run drives the app: stdin lines are commands and the view is redrawn at
// cfg.Interval whenever it changed
func Run(ctx context.Context, cfg *config.Client, in io.Reader, out *os.File, logger *slog.Logger) error {
	if logger == nil {
		logger = log.Discard()
	}
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() { _ = app.Close() }()

	ui := NewInPlaceUI(out)
	if ui != nil {
		if err := ui.Init(); err != nil {
			logger.Warn("ui init failed, falling back to plain output", log.Error(err))
			ui = nil
		} else {
			defer ui.Close()
		}
	}

	if cfg.AutoMatch {
		app.Match()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var last string
	draw := func() {
		frame := Render(app.Snapshot(), cfg.Rows, ui.Width())
		if frame == last {
			return
		}
		last = frame
		if ui != nil {
			_ = ui.Draw(frame)
			return
		}
		plainDraw(out, frame)
	}
	draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep streaming until signalled
				lines = nil
				continue
			}
			if app.Exec(line) {
				return nil
			}
			draw()
		case <-ticker.C:
			draw()
		}
	}
}
