package assistant

import (
	"errors"
	"testing"
)

func TestSanitizeExpression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"what is 5 + 3", "5 + 3"},
		{"calculate 10 * 4", "10 * 4"},
		{"2×3", "2*3"},
		{"10÷2", "10/2"},
		{"(1+2)*3", "(1+2)*3"},
		{"drop rm -rf please", "-"},
		{"no numbers here", ""},
	}
	for _, tt := range tests {
		if got := SanitizeExpression(tt.in); got != tt.want {
			t.Errorf("SanitizeExpression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEvalExpression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"5 * 13", 65},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"-5 + 8", 3},
		{"2.5 * 2", 5},
		{"100", 100},
	}
	for _, tt := range tests {
		got, err := EvalExpression(tt.expr)
		if err != nil {
			t.Errorf("EvalExpression(%q) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvalExpression(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	t.Parallel()

	if _, err := EvalExpression("15 / 0"); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("15/0: want ErrDivisionByZero, got %v", err)
	}
	if _, err := EvalExpression("7 % 0"); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("7%%0: want ErrDivisionByZero, got %v", err)
	}
	if _, err := EvalExpression(""); !errors.Is(err, ErrEmptyExpression) {
		t.Errorf("empty: want ErrEmptyExpression, got %v", err)
	}
	if _, err := EvalExpression("(1 + 2"); err == nil {
		t.Error("unclosed paren should fail")
	}
	if _, err := EvalExpression("1 2"); err == nil {
		t.Error("trailing garbage should fail")
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{65, "65"},
		{2.5, "2.5"},
		{-3, "-3"},
		{0.1, "0.1"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
