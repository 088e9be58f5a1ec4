package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the shortest HS512 signing secret NewManager accepts.
const MinSecretBytes = 64

var (
	// ErrExpired is returned by Verify when the token's exp has passed.
	ErrExpired = errors.New("access token expired")
	// ErrMalformed is returned by Verify when the token cannot be decoded or its
	// subject does not carry an id and a username.
	ErrMalformed = errors.New("access token malformed")
	// ErrUnsupported is returned by Verify when the token uses a signing
	// algorithm other than HS512.
	ErrUnsupported = errors.New("access token unsupported")
	// ErrInvalid is returned by Verify for a bad signature or an illegal argument
	// such as an empty token.
	ErrInvalid = errors.New("access token invalid")
	// ErrInvalidSubject is returned by Issue when the subject lacks an id or a
	// username.
	ErrInvalidSubject = errors.New("subject requires user id and username")
)

// Kind classifies a Verify failure for logging.
type Kind int

const (
	// KindNone means the error is not a Verify failure.
	KindNone Kind = iota
	KindExpired
	KindMalformed
	KindUnsupported
	KindInvalid
)

// String returns the lower-case log label for k.
func (k Kind) String() string {
	switch k {
	case KindExpired:
		return "expired"
	case KindMalformed:
		return "malformed"
	case KindUnsupported:
		return "unsupported"
	case KindInvalid:
		return "invalid"
	default:
		return "none"
	}
}

// KindOf reports which of the four Verify failures err carries.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	default:
		return KindNone
	}
}

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL time.Duration
	Secret    []byte
	Issuer    string
	Leeway    time.Duration
	// Now overrides the clock used for iat, exp and expiry checks.
	Now func() time.Time
}

// Manager defines a public type used by authkit APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
	parser *jwt.Parser
}

// Subject identifies the user an access token is issued for.
type Subject struct {
	UserID   string
	Username string
}

// AccessClaims defines a public type used by authkit APIs.
//
// The registered sub claim carries "{id},{username}"; uid and usr repeat the same
// values as typed fields.
type AccessClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("hs512 requires a secret of at least %d bytes", MinSecretBytes)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	return &Manager{config: cfg, parser: jwt.NewParser(options...)}, nil
}

// Issue describes the issue operation and its observable behavior.
//
// Issue returns ErrInvalidSubject when either subject field is empty.
// Issue does not mutate shared global state and can be used concurrently.
func (j *Manager) Issue(sub Subject) (string, error) {
	if sub.UserID == "" || sub.Username == "" {
		return "", ErrInvalidSubject
	}

	// iat and exp are encoded at jwt.TimePrecision; align now so that
	// exp - iat is exactly AccessTTL.
	now := j.config.Now().Truncate(jwt.TimePrecision)
	claims := AccessClaims{
		UserID:   sub.UserID,
		Username: sub.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   FormatSubject(sub),
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(j.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify fails with exactly one of ErrExpired, ErrMalformed, ErrUnsupported or
// ErrInvalid. Use KindOf to classify the result.
func (j *Manager) Verify(tokenStr string) (*AccessClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalid)
	}

	claims := &AccessClaims{}
	token, err := j.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalid)
	}

	if claims.UserID == "" && claims.Username == "" {
		sub, ok := ParseSubject(claims.Subject)
		if !ok {
			return nil, fmt.Errorf("%w: subject %q", ErrMalformed, claims.Subject)
		}
		claims.UserID, claims.Username = sub.UserID, sub.Username
	}
	if claims.Subject != FormatSubject(Subject{UserID: claims.UserID, Username: claims.Username}) {
		return nil, fmt.Errorf("%w: subject does not match uid/usr", ErrMalformed)
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

// FormatSubject renders the "{id},{username}" subject string.
func FormatSubject(sub Subject) string {
	return sub.UserID + "," + sub.Username
}

// ParseSubject splits a "{id},{username}" subject on its first comma. Usernames may
// contain commas; ids may not.
func ParseSubject(subject string) (Subject, bool) {
	id, username, ok := strings.Cut(subject, ",")
	if !ok || id == "" || username == "" {
		return Subject{}, false
	}
	return Subject{UserID: id, Username: username}, true
}
