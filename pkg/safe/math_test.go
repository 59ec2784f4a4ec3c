package safe

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestSafeAdd(t *testing.T) {
	got, err := SafeAdd(uint256.NewInt(2), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("SafeAdd failed: %v", err)
	}
	if got.Uint64() != 5 {
		t.Errorf("SafeAdd = %s, want 5", got)
	}

	max := new(uint256.Int).SetAllOne()
	if _, err := SafeAdd(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestSafeSub(t *testing.T) {
	a := uint256.NewInt(10)
	got, err := SafeSub(a, uint256.NewInt(4))
	if err != nil {
		t.Fatalf("SafeSub failed: %v", err)
	}
	if got.Uint64() != 6 {
		t.Errorf("SafeSub = %s, want 6", got)
	}
	if a.Uint64() != 10 {
		t.Errorf("input modified: %s", a)
	}

	if _, err := SafeSub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, ErrUnderflow) {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}

func TestSafeMul(t *testing.T) {
	got, err := SafeMul(uint256.NewInt(6), uint256.NewInt(7))
	if err != nil || got.Uint64() != 42 {
		t.Errorf("SafeMul = %v, %v; want 42", got, err)
	}

	max := new(uint256.Int).SetAllOne()
	if _, err := SafeMul(max, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestSafeMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d *uint256.Int
		want    uint64
		wantErr error
	}{
		{"exact", uint256.NewInt(10000), uint256.NewInt(500), uint256.NewInt(10000), 500, nil},
		{"floors", uint256.NewInt(9999), uint256.NewInt(500), uint256.NewInt(10000), 499, nil},
		{"zero divisor", uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0), 0, ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeMulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Uint64() != tt.want {
				t.Errorf("got %s, want %d", got, tt.want)
			}
		})
	}

	t.Run("wide intermediate", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		got, err := SafeMulDiv(max, uint256.NewInt(500), uint256.NewInt(10000))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := new(uint256.Int).Div(max, uint256.NewInt(20))
		if !got.Eq(want) {
			t.Errorf("got %s, want %s", got, want)
		}
	})
}
