package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authkit/outbound"
	"github.com/MrEthical07/authkit/storage"
)

// OutboundFailureKind classifies outbound login failures for root-level mapping.
type OutboundFailureKind int

const (
	OutboundFailureNone OutboundFailureKind = iota
	OutboundFailureExchange
	OutboundFailureIdentity
	OutboundFailureLookup
	OutboundFailureHash
	OutboundFailureDuplicate
	OutboundFailurePersist
	OutboundFailureIssue
)

// OutboundResult carries either the issued pair or failure metadata.
type OutboundResult struct {
	Failure           OutboundFailureKind
	Err               error
	Email             string
	Created           bool
	BackfillScheduled bool
	Pair              TokenPair
}

// OutboundDeps captures outbound login dependencies.
type OutboundDeps struct {
	PlaceholderPassword string

	Exchange        func(ctx context.Context, code string) (string, error)
	FetchIdentity   func(ctx context.Context, accessToken string) (*outbound.Identity, error)
	FindUserByEmail func(ctx context.Context, email string) (*storage.User, error)
	FindUserByID    func(ctx context.Context, id string) (*storage.User, error)
	SaveUser        func(ctx context.Context, u *storage.User) error
	HashPassword    func(string) (string, error)

	// UploadImage re-hosts a provider picture; nil disables backfill.
	UploadImage func(ctx context.Context, sourceURL string) (string, error)
	// Detach runs task outside the request lifetime.
	Detach func(task func(context.Context))
	Warn   func(msg string, args ...any)

	UserNotFound error
	Duplicate    error

	Tokens TokenDeps
}

// RunOutboundLogin exchanges code for a provider token, reads the identity and
// reconciles it with a local user by email before issuing a token pair.
//
// A returning user without a profile image gets a detached best-effort backfill
// whose failure is only logged. A first-time user is created with the placeholder
// password hashed. A unique-constraint collision on create is returned as
// OutboundFailureDuplicate without retrying.
func RunOutboundLogin(ctx context.Context, code string, deps OutboundDeps) OutboundResult {
	providerToken, err := deps.Exchange(ctx, code)
	if err != nil {
		return OutboundResult{Failure: OutboundFailureExchange, Err: err}
	}

	identity, err := deps.FetchIdentity(ctx, providerToken)
	if err != nil {
		return OutboundResult{Failure: OutboundFailureIdentity, Err: err}
	}

	existing, err := deps.FindUserByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		scheduled := scheduleBackfill(*existing, identity.PictureURL, deps)
		issued := RunGenerateTokens(ctx, *existing, deps.Tokens)
		if issued.Failure != TokenFailureNone {
			return OutboundResult{Failure: OutboundFailureIssue, Err: issued.Err, Email: identity.Email, BackfillScheduled: scheduled}
		}
		return OutboundResult{Email: identity.Email, BackfillScheduled: scheduled, Pair: issued.Pair}
	case deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound):
	default:
		return OutboundResult{Failure: OutboundFailureLookup, Err: err, Email: identity.Email}
	}

	hash, err := deps.HashPassword(deps.PlaceholderPassword)
	if err != nil {
		return OutboundResult{Failure: OutboundFailureHash, Err: err, Email: identity.Email}
	}

	user := &storage.User{
		Username:        outboundUsername(identity),
		Email:           identity.Email,
		PasswordHash:    hash,
		ProfileImageRef: identity.PictureURL,
	}
	if err := deps.SaveUser(ctx, user); err != nil {
		kind := OutboundFailurePersist
		if deps.Duplicate != nil && errors.Is(err, deps.Duplicate) {
			kind = OutboundFailureDuplicate
		}
		return OutboundResult{Failure: kind, Err: err, Email: identity.Email}
	}

	issued := RunGenerateTokens(ctx, *user, deps.Tokens)
	if issued.Failure != TokenFailureNone {
		return OutboundResult{Failure: OutboundFailureIssue, Err: issued.Err, Email: identity.Email, Created: true}
	}
	return OutboundResult{Email: identity.Email, Created: true, Pair: issued.Pair}
}

func outboundUsername(identity *outbound.Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(identity.Email, "@")
	return local
}

func scheduleBackfill(user storage.User, pictureURL string, deps OutboundDeps) bool {
	if user.ProfileImageRef != "" || pictureURL == "" {
		return false
	}
	if deps.UploadImage == nil || deps.Detach == nil {
		return false
	}

	userID := user.ID
	deps.Detach(func(ctx context.Context) {
		hosted, err := deps.UploadImage(ctx, pictureURL)
		if err != nil {
			warn(deps.Warn, "authkit: profile image backfill upload failed", "user_id", userID, "error", err)
			return
		}

		current, err := deps.FindUserByID(ctx, userID)
		if err != nil {
			warn(deps.Warn, "authkit: profile image backfill reload failed", "user_id", userID, "error", err)
			return
		}
		if current.ProfileImageRef != "" {
			return
		}
		current.ProfileImageRef = hosted
		if err := deps.SaveUser(ctx, current); err != nil {
			warn(deps.Warn, "authkit: profile image backfill save failed", "user_id", userID, "error", err)
		}
	})
	return true
}

func warn(fn func(string, ...any), msg string, args ...any) {
	if fn != nil {
		fn(msg, args...)
	}
}
