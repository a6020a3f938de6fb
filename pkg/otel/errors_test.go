package otel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}
	_, pathErr := os.Open("/nonexistent/dataset.json")
	dnsErr := &net.DNSError{Err: "no such host", Name: "loki.invalid", IsTimeout: true}
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		name          string
		err           error
		wantType      string
		wantTransient bool
	}{
		{"canceled", fmt.Errorf("failed to send request: %w", context.Canceled), ErrorTypeCanceled, false},
		{"deadline", context.DeadlineExceeded, ErrorTypeNetwork, true},
		{"network", fmt.Errorf("failed to make request: %w", dnsErr), ErrorTypeNetwork, true},
		{"json", fmt.Errorf("invalid dataset: %w", syntaxErr), ErrorTypeParse, false},
		{"dial", fmt.Errorf("failed to make request: %w", dialErr), ErrorTypeNetwork, true},
		{"file", fmt.Errorf("failed to read dataset file: %w", pathErr), ErrorTypeIO, false},
		{"file wrapping errno", &fs.PathError{Op: "open", Path: "dataset.json", Err: syscall.ENOENT}, ErrorTypeIO, false},
		{"unknown", errors.New("boom"), ErrorTypeValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotTransient := Classify(tt.err, ErrorTypeValidation)
			if gotType != tt.wantType || gotTransient != tt.wantTransient {
				t.Errorf("Classify() = (%q, %v), want (%q, %v)", gotType, gotTransient, tt.wantType, tt.wantTransient)
			}
		})
	}
}
