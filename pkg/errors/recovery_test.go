package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	fit := func() (err error) {
		defer Recover(&err, "CrossValScore.fold[0]")
		panic("estimator exploded")
	}

	err := fit()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "CrossValScore.fold[0]" {
		t.Errorf("Operation = %q", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if want := "panic in CrossValScore.fold[0]: estimator exploded"; panicErr.Error() != want {
		t.Errorf("Error() = %q, want %q", panicErr.Error(), want)
	}
	if !strings.Contains(panicErr.String(), "Stack trace:") {
		t.Error("String() should include the stack trace")
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	fit := func() (err error) {
		defer Recover(&err, "Pipeline.Fit")
		return nil
	}
	if err := fit(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	fit := func() (err error) {
		defer Recover(&err, "GridSearchCV.Fit")
		err = originalErr
		panic("panic after error")
	}

	err := fit()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "panic in GridSearchCV.Fit") {
		t.Errorf("message should contain panic info: %s", msg)
	}
	if !strings.Contains(msg, "original error") {
		t.Errorf("message should contain original error: %s", msg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("original error should stay in the chain")
	}
}

func TestSafeExecute(t *testing.T) {
	fnErr := fmt.Errorf("function error")

	tests := []struct {
		name      string
		fn        func() error
		wantErr   error
		wantPanic bool
	}{
		{name: "success", fn: func() error { return nil }},
		{name: "function error passes through", fn: func() error { return fnErr }, wantErr: fnErr},
		{name: "panic becomes PanicError", fn: func() error { panic("boom") }, wantPanic: true},
		{
			name: "nil map write",
			fn: func() error {
				var m map[string]int
				m["x"] = 1
				return nil
			},
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("fold", tt.fn)
			if tt.wantPanic {
				var panicErr *PanicError
				if !errors.As(err, &panicErr) {
					t.Fatalf("expected *PanicError, got %T (%v)", err, err)
				}
				return
			}
			if err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPanicError_Unwrap(t *testing.T) {
	if NewPanicError("op", "plain string").Unwrap() != nil {
		t.Error("Unwrap() should be nil for non-error panic values")
	}

	cause := NewValueError("Fit", "bad input")
	wrapped := NewPanicError("op", cause)
	var valueErr *ValueError
	if !errors.As(wrapped, &valueErr) {
		t.Error("Unwrap() should expose an error panic value")
	}
}

func TestRecover_DifferentPanicTypes(t *testing.T) {
	values := []interface{}{"string", 42, fmt.Errorf("an error"), struct{ Fold int }{3}, nil}

	for i, v := range values {
		t.Run(fmt.Sprintf("value_%d", i), func(t *testing.T) {
			err := SafeExecute("op", func() error { panic(v) })
			var panicErr *PanicError
			if !errors.As(err, &panicErr) {
				t.Fatalf("expected *PanicError, got %T", err)
			}
		})
	}
}
