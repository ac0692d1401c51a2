package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
)

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var p page
	code := http.StatusOK
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodPost:
		p.Message, p.Error = s.applySettings(r)
		if p.Error {
			code = http.StatusBadRequest
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p.Pins = s.pins.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	render(w, settingsTmpl, p)
}

var settingsParams = []string{"action", "pin", "name", "resistor"}

// applySettings runs one settings form action and returns the message to
// show and whether it is an error.
func (s *Server) applySettings(r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		return "Couldn't parse the request.", true
	}
	for _, key := range settingsParams {
		if _, ok := r.PostForm[key]; !ok {
			return fmt.Sprintf("Received a request missing the %q parameter.", key), true
		}
	}

	action := r.PostForm.Get("action")
	pinArg := strings.TrimSpace(r.PostForm.Get("pin"))
	name := r.PostForm.Get("name")
	resistor := r.PostForm.Get("resistor")

	pull, err := gpio.ParsePull(resistor)
	if err != nil {
		return fmt.Sprintf("Received invalid resistor value %q.", resistor), true
	}

	var apply func(id uint8) error
	var done string
	switch action {
	case "add":
		apply = func(id uint8) error { return s.pins.Register(id, name, pull) }
		done = "Successfully added Pin to be watched."
	case "update":
		apply = func(id uint8) error {
			err := s.pins.Update(id, name, pull)
			if err == nil || errors.Is(err, monitor.ErrPersist) {
				s.settle()
			}
			return err
		}
		done = "Successfully updated watched Pin."
	case "delete":
		apply = s.pins.Unregister
		done = "Successfully removed watched Pin."
	case "cancel":
		return "", false
	default:
		return fmt.Sprintf("Received invalid action %q.", action), true
	}

	id, ok := parsePin(pinArg)
	if !ok {
		return fmt.Sprintf("Couldn't %s pin because pin %s isn't an input pin.", action, pinArg), true
	}
	err = apply(id)
	switch {
	case err == nil:
		return done, false
	case errors.Is(err, monitor.ErrPersist):
		log.Printf("web: %s pin %d: %v", action, id, err)
		return done + " Saving the pin list failed.", false
	}
	return failure(action, pinArg, name, err), true
}

// settle waits one debounce window so a re-pulled pin shows its new level.
func (s *Server) settle() {
	s.sleep(min(s.pins.Debounce(), maxSettle))
}

func failure(action, pin, name string, err error) string {
	msg := "Couldn't " + action + " pin because "
	switch {
	case errors.Is(err, monitor.ErrInvalidPin), errors.Is(err, monitor.ErrReservedPin):
		return msg + "pin " + pin + " isn't an input pin."
	case errors.Is(err, monitor.ErrInvalidLabel):
		return msg + strconv.Quote(name) + " isn't a valid pin name."
	case errors.Is(err, monitor.ErrAlreadyWatched):
		return msg + "pin " + pin + " is already being watched."
	case errors.Is(err, monitor.ErrNotWatched):
		return msg + "pin " + pin + " isn't being watched."
	}
	log.Printf("web: %s pin %s: %v", action, pin, err)
	return msg + "of an unknown error."
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var p page
	if err := r.ParseForm(); err != nil {
		p.Message = "Couldn't parse the request."
	} else if _, ok := r.PostForm["pin"]; !ok {
		p.Message = "Didn't receive pin to delete."
	} else {
		arg := strings.TrimSpace(r.PostForm.Get("pin"))
		id, ok := parsePin(arg)
		switch {
		case !ok:
			p.Message = "Pin " + arg + " isn't an input pin."
		default:
			pin, watched := s.pins.Pin(id)
			pin.ID = id
			p.Pin = &pin
			if !watched {
				if s.pins.Board().Check(id) != nil {
					p.Message = fmt.Sprintf("Pin %d isn't an input pin.", id)
				} else {
					p.Message = fmt.Sprintf("Pin %d isn't being watched.", id)
				}
			}
		}
	}
	p.Error = p.Message != ""

	code := http.StatusOK
	if p.Error {
		code = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	render(w, deleteTmpl, p)
}

func parsePin(s string) (uint8, bool) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
