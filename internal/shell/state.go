package shell

import (
	"encoding/json"
	"time"

	"servisca-quickmatch/internal/stream"
	"servisca-quickmatch/internal/tasks"
)

type (
	ViewModel struct {
		Now     time.Time
		Backend string

		Form    tasks.Form
		Attempt tasks.Attempt
		Message string

		Task   PanelView
		User   PanelView
		Tester PanelView
	}

	PanelView struct {
		Title  string
		Topic  string
		Status stream.Status
		Events []json.RawMessage
	}
)

func panelOf(title string, w *stream.Watcher) PanelView {
	return PanelView{
		Title:  title,
		Topic:  w.Topic(),
		Status: w.Status(),
		Events: w.Events(),
	}
}
