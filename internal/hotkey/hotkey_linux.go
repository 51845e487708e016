//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

int keycodeFor(const char* name) {
    if (!openDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

int grabKey(int keycode, int modifiers) {
    if (!openDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;
    XUngrabKey(displayPtr, keycode, modifiers, DefaultRootWindow(displayPtr));
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type binding struct {
	keycode   int
	modifiers int
	callback  func(bool)
}

type linuxManager struct {
	mu       sync.Mutex
	bindings map[string]binding
	stop     chan struct{}
	once     sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		bindings: make(map[string]binding),
		stop:     make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func x11Modifiers(m Modifier) int {
	var mask int
	if m&ModShift != 0 {
		mask |= 1 // ShiftMask
	}
	if m&ModCtrl != 0 {
		mask |= 4 // ControlMask
	}
	if m&ModAlt != 0 {
		mask |= 8 // Mod1Mask
	}
	if m&ModSuper != 0 {
		mask |= 64 // Mod4Mask
	}
	return mask
}

func x11KeyName(key string) string {
	switch key {
	case "Space":
		return "space"
	case "Enter":
		return "Return"
	default:
		// Letters are lower-case keysyms; digits, F-keys, Tab and Escape
		// already match their keysym names.
		if len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z' {
			return string(key[0] + 32)
		}
		return key
	}
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11KeyName(a.Key))
	defer C.free(unsafe.Pointer(name))

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("no keycode for %s", a.Key)
	}
	modifiers := x11Modifiers(a.Modifiers)

	if C.grabKey(C.int(keycode), C.int(modifiers)) == 0 {
		return fmt.Errorf("failed to grab key")
	}

	m.mu.Lock()
	m.bindings[a.String()] = binding{keycode: keycode, modifiers: modifiers, callback: callback}
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) == 0 {
				continue
			}
			m.mu.Lock()
			var cbs []func(bool)
			for _, b := range m.bindings {
				if b.keycode == int(keycode) {
					cbs = append(cbs, b.callback)
				}
			}
			m.mu.Unlock()
			for _, cb := range cbs {
				cb(pressed == 1)
			}
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	b, ok := m.bindings[a.String()]
	delete(m.bindings, a.String())
	m.mu.Unlock()

	if ok {
		C.ungrabKey(C.int(b.keycode), C.int(b.modifiers))
	}
	return nil
}

func (m *linuxManager) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
