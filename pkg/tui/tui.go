// Package tui is the terminal surface: a tview layout with a transcript
// view, a message input, and a server field, driven by the widget core.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"rasachat/pkg/widget"
)

// UI renders one widget in the terminal. Widget callbacks arrive on
// arbitrary goroutines; they are coalesced onto a channel and applied on the
// tview draw loop, so the surface never blocks the widget.
type UI struct {
	app        *tview.Application
	transcript *tview.TextView
	input      *tview.InputField
	server     *tview.InputField
	footer     *tview.TextView
	w          *widget.Widget

	events     chan struct{}
	clearInput atomic.Bool
}

func New() *UI {
	ui := &UI{
		app:    tview.NewApplication(),
		events: make(chan struct{}, 1),
	}

	ui.transcript = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	ui.transcript.SetBorder(true).SetTitle(" rasachat ")

	ui.server = tview.NewInputField().
		SetLabel(" Server ").
		SetFieldWidth(0)

	ui.input = tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	ui.footer = tview.NewTextView().SetDynamicColors(true)
	ui.footer.SetText("[gray]Enter send · Tab focus · Ctrl-L clear · Ctrl-R restart · Ctrl-T status · Ctrl-C quit")

	return ui
}

// Attach binds the widget this surface renders. Must be called before Run.
func (ui *UI) Attach(w *widget.Widget) {
	ui.w = w
	ui.server.SetText(w.ServerBaseURL())
}

// EntryAppended implements widget.Surface.
func (ui *UI) EntryAppended(widget.Entry) { ui.notify() }

// TranscriptReset implements widget.Surface.
func (ui *UI) TranscriptReset([]widget.Entry) { ui.notify() }

// InputCleared implements widget.Surface.
func (ui *UI) InputCleared() {
	ui.clearInput.Store(true)
	ui.notify()
}

func (ui *UI) notify() {
	select {
	case ui.events <- struct{}{}:
	default:
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (ui *UI) Run(ctx context.Context) error {
	if ui.w == nil {
		return fmt.Errorf("tui: no widget attached")
	}

	ui.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			// Submit is asynchronous; the widget clears the input through
			// InputCleared only when it accepts the text.
			ui.w.Submit(ui.input.GetText())
		}
	})

	ui.server.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		url := strings.TrimSpace(ui.server.GetText())
		if url == "" {
			return
		}
		ui.w.SetServerBaseURL(url)
		ui.setFooter("[gray]Server set to " + tview.Escape(url))
		ui.app.SetFocus(ui.input)
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.server, 1, 0, false).
		AddItem(ui.transcript, 0, 1, false).
		AddItem(ui.input, 1, 0, true).
		AddItem(ui.footer, 1, 0, false)

	ui.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyCtrlL:
			ui.w.Clear()
			return nil
		case tcell.KeyCtrlR:
			go ui.w.Restart(context.Background())
			return nil
		case tcell.KeyCtrlT:
			go ui.checkStatus()
			return nil
		case tcell.KeyTab:
			if ui.app.GetFocus() == ui.input {
				ui.app.SetFocus(ui.server)
			} else {
				ui.app.SetFocus(ui.input)
			}
			return nil
		}
		return ev
	})

	stop := make(chan struct{})
	defer close(stop)
	go ui.consumeEvents(stop)

	go func() {
		select {
		case <-ctx.Done():
			ui.app.Stop()
		case <-stop:
		}
	}()

	ui.render()
	return ui.app.SetRoot(layout, true).Run()
}

// consumeEvents applies widget updates on the draw loop. Each wakeup redraws
// from a fresh transcript snapshot, so coalesced notifications lose nothing.
func (ui *UI) consumeEvents(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ui.events:
			ui.app.QueueUpdateDraw(ui.render)
		}
	}
}

func (ui *UI) render() {
	var b strings.Builder
	for _, e := range ui.w.Entries() {
		switch e.Role {
		case widget.RoleUser:
			fmt.Fprintf(&b, "[blue::b]you[-::-]  %s\n", tview.Escape(e.Text))
		case widget.RoleBot:
			fmt.Fprintf(&b, "[green::b]bot[-::-]  %s\n", tview.Escape(e.Text))
		default:
			fmt.Fprintf(&b, "[gray]·  %s[-]\n", tview.Escape(e.Text))
		}
	}
	ui.transcript.SetText(b.String())
	ui.transcript.ScrollToEnd()

	if ui.clearInput.Swap(false) {
		ui.input.SetText("")
	}
}

// checkStatus probes the server and reports in the footer, leaving the
// transcript alone.
func (ui *UI) checkStatus() {
	status, err := ui.w.Status(context.Background())
	text := ""
	if err != nil {
		text = "[red]Status check failed: " + tview.Escape(err.Error())
	} else {
		doc, _ := json.Marshal(status)
		text = "[green]Server is reachable[-] [gray]" + tview.Escape(string(doc))
	}
	ui.app.QueueUpdateDraw(func() { ui.setFooter(text) })
}

func (ui *UI) setFooter(text string) {
	ui.footer.SetText(text)
}
