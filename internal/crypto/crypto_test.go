package crypto

import (
	"errors"
	"testing"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("tracker-token-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "tracker-token-123" {
		t.Fatal("sealed value equals plaintext")
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "tracker-token-123" {
		t.Errorf("Open = %q, want tracker-token-123", plain)
	}
}

func TestSeal_NonceMakesOutputsDiffer(t *testing.T) {
	s := newTestSealer(t)
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestSealOpen_EmptyPassesThrough(t *testing.T) {
	s := newTestSealer(t)
	if v, err := s.Seal(""); err != nil || v != "" {
		t.Errorf("Seal(\"\") = %q, %v", v, err)
	}
	if v, err := s.Open(""); err != nil || v != "" {
		t.Errorf("Open(\"\") = %q, %v", v, err)
	}
}

func TestOpen_Malformed(t *testing.T) {
	s := newTestSealer(t)
	if _, err := s.Open("not base64!!"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Open(bad base64) err = %v, want ErrMalformed", err)
	}
	if _, err := s.Open("AAAA"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Open(short) err = %v, want ErrMalformed", err)
	}
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"not b64":   "%%%",
		"too short": "c2hvcnQ=",
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSealer(key); err == nil {
				t.Error("expected error")
			}
		})
	}
}
