//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Cocoa
#import <AVFoundation/AVFoundation.h>
#import <Cocoa/Cocoa.h>

int checkCapturePermission(int video) {
    AVMediaType media = video ? AVMediaTypeVideo : AVMediaTypeAudio;
    return (int)[AVCaptureDevice authorizationStatusForMediaType:media];
}

void requestCapturePermission(int video) {
    AVMediaType media = video ? AVMediaTypeVideo : AVMediaTypeAudio;
    [AVCaptureDevice requestAccessForMediaType:media completionHandler:^(BOOL granted) {}];
}

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
)

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckCamera returns the current camera permission status
func CheckCamera() int {
	return int(C.checkCapturePermission(1))
}

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkCapturePermission(0))
}

// EnsureCapture checks camera and microphone access, triggering the system
// dialog for any device that has not been decided yet. Both devices are
// checked so the user sees every prompt at once.
func EnsureCapture() error {
	var errs []error

	if status := CheckCamera(); status != PermissionAuthorized {
		if status == PermissionNotDetermined {
			C.requestCapturePermission(1)
		}
		errs = append(errs, ErrCameraDenied)
	}

	if status := CheckMicrophone(); status != PermissionAuthorized {
		if status == PermissionNotDetermined {
			C.requestCapturePermission(0)
		}
		errs = append(errs, ErrMicrophoneDenied)
	}

	return errors.Join(errs...)
}

// EnsureHotkeys checks accessibility access, needed for the global hotkey
func EnsureHotkeys() error {
	if int(C.checkAccessibilityPermission()) != 1 {
		return fmt.Errorf("accessibility permission not granted")
	}
	return nil
}
