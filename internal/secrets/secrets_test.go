package secrets

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

const testKey = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword(20)
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	if len(p) != 20 {
		t.Errorf("got length %d, want 20", len(p))
	}
	for _, r := range p {
		if !strings.ContainsRune(passwordCharset, r) {
			t.Errorf("password contains %q outside the charset", r)
		}
	}

	q, err := GeneratePassword(20)
	if err != nil {
		t.Fatal(err)
	}
	if p == q {
		t.Error("two generated passwords are identical")
	}
}

func TestGeneratePassword_DefaultLength(t *testing.T) {
	p, err := GeneratePassword(0)
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	if len(p) != 24 {
		t.Errorf("got length %d, want the default 24", len(p))
	}
}

func TestNewCredentials(t *testing.T) {
	c, err := NewCredentials("Acme Shop")
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	if c.DBUser != "shop_acme_shop" {
		t.Errorf("got db user %q, want shop_acme_shop", c.DBUser)
	}
	if c.AdminUser != "admin" {
		t.Errorf("got admin user %q, want admin", c.AdminUser)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.AdminPassBcrypt), []byte(c.AdminPassword)); err != nil {
		t.Errorf("bcrypt hash does not match the admin password: %v", err)
	}
	if c.DBPassword == c.AdminPassword {
		t.Error("db and admin passwords are identical")
	}
}

func TestSanitizeSlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Acme Shop", "acme_shop"},
		{"shop.example.com", "shop_example_com"},
		{"Ünïcode & Symbols!", "ncde__symbols"},
		{"", "tenant"},
		{"a-very-long-store-name-indeed", "a_very_long_stor"},
	}
	for _, c := range cases {
		if got := sanitizeSlug(c.in); got != c.want {
			t.Errorf("sanitizeSlug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSealOpenRoundtrip(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}

	c, err := NewCredentials("roundtrip")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := s.Seal(c)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte(c.AdminPassword)) {
		t.Error("sealed blob contains the plaintext password")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if *got != *c {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, c)
	}
}

func TestSeal_NoncesDiffer(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatal(err)
	}
	c := &Credentials{AdminUser: "admin"}

	a, err := s.Seal(c)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Seal(c)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same payload are byte-identical")
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	s1, err := NewSealer(testKey)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := NewSealer(strings.Repeat("ff", 32))
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := s1.Seal(&Credentials{AdminUser: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Open(sealed); err == nil {
		t.Error("opening with the wrong key succeeded")
	}
}

func TestOpen_TruncatedBlob(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open([]byte("short")); err == nil {
		t.Error("opening a truncated blob succeeded")
	}
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	if _, err := NewSealer("not-hex"); err == nil {
		t.Error("non-hex key accepted")
	}
	if _, err := NewSealer("abcd"); err == nil {
		t.Error("short key accepted")
	}
}
