package app

import "testing"

func TestInTestMode(t *testing.T) {
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		"TRUE":  true,
		"0":     false,
		"false": false,
		"":      false,
		"yes":   false,
	}
	for value, want := range cases {
		t.Setenv(testModeEnv, value)
		if got := InTestMode(); got != want {
			t.Fatalf("%s=%q: expected %v, got %v", testModeEnv, value, want, got)
		}
	}
}
