package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mixpress/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "burning", "hdiutil burn", "burn utility failed", cause)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	for _, fragment := range []string{"burning", "hdiutil burn", "burn utility failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "encoding", "encode file", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestIsCancelledMatchesMarkerNotText(t *testing.T) {
	wrapped := services.Wrap(services.ErrCancelled, "burning", "wait for media", "user cancelled", nil)
	if !services.IsCancelled(wrapped) {
		t.Fatal("expected cancellation marker to be detected")
	}
	impostor := fmt.Errorf("operation cancelled by tool")
	if services.IsCancelled(impostor) {
		t.Fatal("plain text mentioning cancellation must not classify as cancelled")
	}
}

func TestIsMediaTimeout(t *testing.T) {
	err := services.Wrap(services.ErrMediaTimeout, "burning", "wait for media", "no usable disc", nil)
	if !services.IsMediaTimeout(err) {
		t.Fatalf("expected media timeout marker, got %v", err)
	}
}
