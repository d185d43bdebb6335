package ui

import (
	tele "gopkg.in/telebot.v4"

	"botkit/pkg/dispatch"
)

// Button is one inline-keyboard button. Callback buttons carry a
// component identifier plus a handler; URL buttons carry neither.
type Button struct {
	Text string

	// ID is the component identifier, conventionally "ns:action".
	// Unique among the currently live components; rebuilding a button
	// with the same ID replaces its handler.
	ID      string
	Payload string // optional payload appended to the callback data

	URL string // set for URL buttons instead of ID/Handle

	Group  string // optional enclosing declaration for scope gating
	Meta   dispatch.Meta
	Handle dispatch.HandlerFunc
}

// Btn is a shorthand callback-button constructor.
func Btn(text, id string, fn dispatch.HandlerFunc) Button {
	return Button{Text: text, ID: id, Handle: fn}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) Button {
	return Button{Text: text, URL: url}
}

// Keyboard is a pure description of an inline keyboard.
type Keyboard struct {
	rows [][]Button
}

func NewKeyboard() *Keyboard { return &Keyboard{} }

// Row appends a row of buttons.
func (k *Keyboard) Row(btns ...Button) *Keyboard {
	k.rows = append(k.rows, btns)
	return k
}

// Validate checks every callback button's data against the platform
// limit.
func (k *Keyboard) Validate() error {
	for _, row := range k.rows {
		for _, b := range row {
			if b.URL != "" {
				continue
			}
			if err := CheckDataLen(joinData(b.ID, b.Payload)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Markup renders the keyboard description. No registry is touched; use
// Bind to activate the handlers.
func (k *Keyboard) Markup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(k.rows))
	for _, row := range k.rows {
		tr := make(tele.Row, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				tr = append(tr, tele.Btn{Text: b.Text, URL: b.URL})
				continue
			}
			tr = append(tr, tele.Btn{Text: b.Text, Data: joinData(b.ID, b.Payload)})
		}
		rows = append(rows, tr)
	}
	rm.Inline(rows...)
	return rm
}

// Bind registers every callback button's handler with reg and returns
// the rendered markup. This is the activation step: only after Bind do
// interactions with the keyboard resolve.
func (k *Keyboard) Bind(reg *dispatch.Registry) *tele.ReplyMarkup {
	for _, row := range k.rows {
		for _, b := range row {
			if b.URL != "" || b.ID == "" || b.Handle == nil {
				continue
			}
			reg.Register(dispatch.Entry{
				ID:     b.ID,
				Group:  b.Group,
				Meta:   b.Meta,
				Handle: b.Handle,
			})
		}
	}
	return k.Markup()
}

func joinData(id, payload string) string {
	if payload == "" {
		return id
	}
	return id + ":" + payload
}
