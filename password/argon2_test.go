package password

import (
	"errors"
	"strings"
	"testing"
)

// lightConfig keeps argon2 cheap enough for table tests.
func lightConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestHashEncodesParametersAndVerifies(t *testing.T) {
	h := newHasher(t, DefaultConfig())

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected encoding: %s", hash)
	}
	if strings.Contains(hash, "secret1") {
		t.Fatal("hash must not contain the plaintext")
	}

	ok, err := h.Verify("secret1", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("secret2", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newHasher(t, lightConfig())

	first, _ := h.Hash("secret1")
	second, _ := h.Hash("secret1")
	if first == second {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestHashLengthBounds(t *testing.T) {
	h := newHasher(t, lightConfig())

	cases := []struct {
		name string
		pwd  string
		want error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"five bytes", "short", ErrPasswordTooShort},
		{"six bytes", "secret", nil},
		{"at max", strings.Repeat("m", MaxPasswordBytes), nil},
		{"over max", strings.Repeat("m", MaxPasswordBytes+1), ErrPasswordTooLong},
	}
	for _, tc := range cases {
		_, err := h.Hash(tc.pwd)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestVerifyRejectsOversizedInputBeforeHashing(t *testing.T) {
	h := newHasher(t, lightConfig())
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if _, err := h.Verify(strings.Repeat("x", MaxPasswordBytes+1), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newHasher(t, lightConfig())
	valid, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cases := map[string]string{
		"not phc":        "not-a-phc-hash",
		"bcrypt":         "$2a$10$abcdefghijklmnopqrstuv",
		"old version":    strings.Replace(valid, "$v=19$", "$v=18$", 1),
		"extra param":    strings.Replace(valid, ",p=1$", ",p=1,x=2$", 1),
		"weak memory":    strings.Replace(valid, "m=8192", "m=1024", 1),
		"zero time":      strings.Replace(valid, "t=1,", "t=0,", 1),
		"bad salt":       strings.Replace(valid, "$m=8192,t=1,p=1$", "$m=8192,t=1,p=1$!!$", 1),
		"missing fields": strings.Join(strings.Split(valid, "$")[:4], "$"),
	}
	for name, encoded := range cases {
		if _, err := h.Verify("secret1", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: expected ErrMalformedHash, got %v", name, err)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, lightConfig())
	current := newHasher(t, DefaultConfig())

	weakHash, err := weak.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	needs, err := current.NeedsUpgrade(weakHash)
	if err != nil || !needs {
		t.Fatalf("expected upgrade for weaker hash, needs=%v err=%v", needs, err)
	}

	needs, err = weak.NeedsUpgrade(weakHash)
	if err != nil || needs {
		t.Fatalf("expected no upgrade for current parameters, needs=%v err=%v", needs, err)
	}

	if _, err := current.NeedsUpgrade("garbage"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutate := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, m := range mutate {
		cfg := lightConfig()
		m(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}
