package ledger

import "testing"

func TestNewAccountNumberFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := NewAccountNumber()
		if len(n) != 12 || n[:2] != "SB" {
			t.Fatalf("account number %q does not match SB + 10 digits", n)
		}
		for _, c := range n[2:] {
			if c < '0' || c > '9' {
				t.Fatalf("account number %q contains non-digit %q", n, c)
			}
		}
		seen[n] = true
	}
	// Collisions in 100 draws from a 10^10 space would point at a broken
	// generator rather than bad luck.
	if len(seen) != 100 {
		t.Errorf("got %d distinct numbers out of 100", len(seen))
	}
}
