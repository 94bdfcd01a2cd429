package editor

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/mmcdole/depotdump/internal/config"
)

// Menu choices
const (
	choiceAdd    = "1"
	choiceRemove = "2"
	choiceToggle = "3"
	choiceFinish = "4"
)

// AppEditor edits the app-ID set and exclusion overlay of a live config.
//
// Remove and Toggle accept either a 1-based position in the ascending list
// shown by Display or a literal app ID. The position reading always wins when
// the number is in range, so with apps {2, 10} the input "2" means app 10.
type AppEditor struct {
	cfg     *config.Config
	p       *Prompter
	logger  *slog.Logger
	changed bool
}

// NewAppEditor creates an editor over cfg
func NewAppEditor(cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger) *AppEditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppEditor{cfg: cfg, p: NewPrompter(in, out), logger: logger}
}

// Run shows the list and menu until Finish or end of input.
// It reports whether the config was modified.
func (e *AppEditor) Run() (bool, error) {
	for {
		e.Display()
		e.p.Println()
		e.p.Println("1) Add app")
		e.p.Println("2) Remove app")
		e.p.Println("3) Toggle exclusion")
		e.p.Println("4) Finish")

		choice, err := e.p.Ask("Choice: ")
		if errors.Is(err, io.EOF) {
			return e.changed, nil
		}
		if err != nil {
			return e.changed, err
		}

		switch choice {
		case choiceAdd:
			err = e.prompt("App ID to add: ", e.Add)
		case choiceRemove:
			err = e.prompt("Index or app ID to remove: ", e.Remove)
		case choiceToggle:
			err = e.prompt("Index or app ID to toggle: ", e.Toggle)
		case choiceFinish:
			return e.changed, nil
		default:
			e.p.Printf("Invalid choice %q.\n", choice)
		}

		if errors.Is(err, io.EOF) {
			return e.changed, nil
		}
		if err != nil {
			return e.changed, err
		}
	}
}

func (e *AppEditor) prompt(label string, action func(string)) error {
	input, err := e.p.Ask(label)
	if err != nil {
		return err
	}
	action(input)
	return nil
}

// Display lists the apps in ascending order with their 1-based position
func (e *AppEditor) Display() {
	ids := e.cfg.Apps.IDs.Sorted()
	e.p.Println()
	if len(ids) == 0 {
		e.p.Println("No apps configured.")
		return
	}
	e.p.Println("Configured apps:")
	for i, id := range ids {
		status := "Included"
		if e.cfg.IsExcluded(id) {
			status = "Excluded"
		}
		e.p.Printf("  %d. %d (%s)\n", i+1, id, status)
	}
}

// Add inserts the app ID in input
func (e *AppEditor) Add(input string) {
	id, err := strconv.ParseUint(input, 10, 32)
	if err != nil {
		e.p.Printf("Invalid app ID %q.\n", input)
		return
	}
	if !e.cfg.AddApp(uint32(id)) {
		e.p.Printf("App %d is already configured.\n", id)
		return
	}
	e.changed = true
	e.logger.Debug("added app", "appID", id)
	e.p.Printf("Added app %d.\n", id)
}

// Remove deletes the app addressed by input from the set and the overlay
func (e *AppEditor) Remove(input string) {
	id, ok := e.resolve(input)
	if !ok {
		return
	}
	e.cfg.RemoveApp(id)
	e.changed = true
	e.logger.Debug("removed app", "appID", id)
	e.p.Printf("Removed app %d.\n", id)
}

// Toggle flips the exclusion status of the app addressed by input
func (e *AppEditor) Toggle(input string) {
	id, ok := e.resolve(input)
	if !ok {
		return
	}
	excluded, _ := e.cfg.ToggleExcluded(id)
	e.changed = true
	status := "Included"
	if excluded {
		status = "Excluded"
	}
	e.logger.Debug("toggled app", "appID", id, "excluded", excluded)
	e.p.Printf("App %d is now %s.\n", id, status)
}

func (e *AppEditor) resolve(input string) (uint32, bool) {
	n, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		e.p.Printf("Invalid input %q: enter an index or app ID.\n", input)
		return 0, false
	}
	id, ok := e.cfg.ResolveApp(n)
	if !ok {
		e.p.Printf("App %q not found.\n", input)
		return 0, false
	}
	return id, true
}
