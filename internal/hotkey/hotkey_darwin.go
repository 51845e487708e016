//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int pressed);

static EventHotKeyRef hotKeyRef = NULL;
static int handlerInstalled = 0;

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    UInt32 eventKind = GetEventKind(theEvent);
    int pressed = (eventKind == kEventHotKeyPressed) ? 1 : 0;

    goHotkeyCallback(pressed);

    return noErr;
}

// Register hotkey with Carbon
static int registerHotkey(UInt32 keyCode, UInt32 modifiers) {
    if (!handlerInstalled) {
        EventTypeSpec eventTypes[2];
        eventTypes[0].eventClass = kEventClassKeyboard;
        eventTypes[0].eventKind = kEventHotKeyPressed;
        eventTypes[1].eventClass = kEventClassKeyboard;
        eventTypes[1].eventKind = kEventHotKeyReleased;

        EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
        InstallApplicationEventHandler(handlerUPP, 2, eventTypes, NULL, NULL);
        handlerInstalled = 1;
    }

    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'fsc1';
    hotKeyID.id = 1;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);

    return (status == noErr) ? 1 : 0;
}

static void unregisterHotkey() {
    if (hotKeyRef != NULL) {
        UnregisterEventHotKey(hotKeyRef);
        hotKeyRef = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"sync"
)

// Carbon virtual key codes (ANSI layout)
var darwinKeyCodes = map[string]uint32{
	"A": 0, "S": 1, "D": 2, "F": 3, "H": 4, "G": 5, "Z": 6, "X": 7, "C": 8, "V": 9,
	"B": 11, "Q": 12, "W": 13, "E": 14, "R": 15, "Y": 16, "T": 17, "1": 18, "2": 19,
	"3": 20, "4": 21, "6": 22, "5": 23, "9": 25, "7": 26, "8": 28, "0": 29, "O": 31,
	"U": 32, "I": 34, "P": 35, "L": 37, "J": 38, "K": 40, "N": 45, "M": 46,
	"Enter": 36, "Tab": 48, "Space": 49, "Escape": 53,
	"F1": 122, "F2": 120, "F3": 99, "F4": 118, "F5": 96, "F6": 97,
	"F7": 98, "F8": 100, "F9": 101, "F10": 109, "F11": 103, "F12": 111,
}

type darwinManager struct {
	mu       sync.Mutex
	accel    string
	callback func(bool)
}

var (
	globalMu      sync.Mutex
	globalManager *darwinManager
)

// New creates a new macOS hotkey manager using Carbon. Only one hotkey is
// active at a time.
func New() (Manager, error) {
	return &darwinManager{}, nil
}

//export goHotkeyCallback
func goHotkeyCallback(pressed C.int) {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(pressed == 1)
	}
}

func carbonModifiers(m Modifier) uint32 {
	var mask uint32
	if m&ModSuper != 0 {
		mask |= 0x100 // cmdKey
	}
	if m&ModShift != 0 {
		mask |= 0x200 // shiftKey
	}
	if m&ModAlt != 0 {
		mask |= 0x800 // optionKey
	}
	if m&ModCtrl != 0 {
		mask |= 0x1000 // controlKey
	}
	return mask
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}
	keyCode, ok := darwinKeyCodes[a.Key]
	if !ok {
		return fmt.Errorf("no key code for %s", a.Key)
	}

	C.unregisterHotkey()
	if C.registerHotkey(C.UInt32(keyCode), C.UInt32(carbonModifiers(a.Modifiers))) == 0 {
		return fmt.Errorf("failed to register hotkey")
	}

	m.mu.Lock()
	m.accel = a.String()
	m.callback = callback
	m.mu.Unlock()

	globalMu.Lock()
	globalManager = m
	globalMu.Unlock()
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accel != a.String() {
		return nil
	}
	C.unregisterHotkey()
	m.accel = ""
	m.callback = nil
	return nil
}

func (m *darwinManager) Close() error {
	C.unregisterHotkey()
	globalMu.Lock()
	if globalManager == m {
		globalManager = nil
	}
	globalMu.Unlock()
	return nil
}
