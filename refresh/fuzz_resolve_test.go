package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/MrEthical07/authkit/storage/memory"
)

// FuzzResolve presents arbitrary candidates against one stored token.
// Goal: no panics, and only the issued secret resolves.
func FuzzResolve(f *testing.F) {
	repo := memory.New()
	store, err := NewStore(repo, time.Hour)
	if err != nil {
		f.Fatal(err)
	}
	owner := storage.User{ID: "u1", Username: "alice1"}
	secret, err := store.Issue(context.Background(), owner)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(secret)
	f.Add("")
	f.Add("not-a-uuid")
	f.Add(Hash(secret))
	f.Add(secret + " ")
	f.Add("00000000-0000-0000-0000-000000000000")

	f.Fuzz(func(t *testing.T, candidate string) {
		if got := Hash(candidate); len(got) != 64 {
			t.Fatalf("hash length %d, want 64", len(got))
		}

		row, err := store.Resolve(context.Background(), owner.Username, candidate)
		if candidate == secret {
			if err != nil || row == nil {
				t.Fatalf("issued secret did not resolve: %v", err)
			}
			return
		}
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("candidate %q: expected ErrNotFound, got row=%v err=%v", candidate, row, err)
		}
	})
}
