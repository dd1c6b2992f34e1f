package authsvc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tripbot/model"
	"tripbot/util/hash"
	jwtutil "tripbot/util/jwt"
)

type ErrKind string

const (
	ErrInvalidHash   ErrKind = "INVALID_HASH"
	ErrMissingHash   ErrKind = "MISSING_HASH"
	ErrExpired       ErrKind = "EXPIRED"
	ErrMalformedUser ErrKind = "MALFORMED_USER"
)

var ErrInvalidCreds = errors.New("invalid credentials")

// Result of a launch-data check. User is nil when the launch data carries
// no user field.
type Result struct {
	Valid bool              `json:"valid"`
	User  *model.LaunchUser `json:"user,omitempty"`
	Error ErrKind           `json:"error,omitempty"`
	// AuthDate is zero when auth_date is absent.
	AuthDate time.Time `json:"-"`
}

func fail(k ErrKind) Result { return Result{Error: k} }

// Verify checks Mini-App launch data signed with botToken. maxAge <= 0
// disables the auth_date expiry check.
func Verify(raw, botToken string, maxAge time.Duration) Result {
	return VerifyAt(raw, botToken, maxAge, time.Now())
}

func VerifyAt(raw, botToken string, maxAge time.Duration, now time.Time) Result {
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return fail(ErrInvalidHash)
	}
	got := vals.Get("hash")
	if got == "" {
		return fail(ErrMissingHash)
	}
	vals.Del("hash")

	want := sign(vals, botToken)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return fail(ErrInvalidHash)
	}

	res := Result{Valid: true}
	if s := vals.Get("auth_date"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fail(ErrExpired)
		}
		res.AuthDate = time.Unix(sec, 0).UTC()
		if maxAge > 0 && now.Sub(res.AuthDate) > maxAge {
			return fail(ErrExpired)
		}
	}

	if s := vals.Get("user"); s != "" {
		var u model.LaunchUser
		if err := json.Unmarshal([]byte(s), &u); err != nil || u.ID == 0 {
			return fail(ErrMalformedUser)
		}
		res.User = &u
	}
	return res
}

// CheckString joins key=value pairs sorted by key with newlines.
func CheckString(vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vals.Get(k))
	}
	return b.String()
}

func sign(vals url.Values, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(CheckString(vals)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignLaunchData encodes vals with a valid hash, the way Telegram would
// hand them to the Mini-App.
func SignLaunchData(vals url.Values, botToken string) string {
	out := url.Values{}
	for k, v := range vals {
		if k != "hash" {
			out[k] = v
		}
	}
	out.Set("hash", sign(out, botToken))
	return out.Encode()
}

type Options struct {
	BotToken          string
	JWTSecret         string
	MaxAge            time.Duration
	SessionTTL        time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

type Service interface {
	// VerifyLaunch checks launch data and, when valid with a user, returns a
	// session token for that Telegram id.
	VerifyLaunch(initData string) (Result, string, error)
	AdminLogin(username, password string) (string, error)
}

type service struct {
	opt Options
}

func New(opt Options) Service {
	if opt.SessionTTL <= 0 {
		opt.SessionTTL = 24 * time.Hour
	}
	return &service{opt: opt}
}

func (s *service) VerifyLaunch(initData string) (Result, string, error) {
	res := Verify(initData, s.opt.BotToken, s.opt.MaxAge)
	if !res.Valid || res.User == nil {
		return res, "", nil
	}
	tok, err := jwtutil.Issue(s.opt.JWTSecret, jwtutil.Claims{
		Subject:    strconv.FormatInt(res.User.ID, 10),
		Role:       jwtutil.RoleUser,
		TelegramID: res.User.ID,
	}, s.opt.SessionTTL)
	if err != nil {
		return res, "", err
	}
	return res, tok, nil
}

func (s *service) AdminLogin(username, password string) (string, error) {
	if s.opt.AdminUsername == "" || s.opt.AdminPasswordHash == "" {
		return "", ErrInvalidCreds
	}
	userOK := hmac.Equal([]byte(username), []byte(s.opt.AdminUsername))
	if !hash.Check(s.opt.AdminPasswordHash, password) || !userOK {
		return "", ErrInvalidCreds
	}
	return jwtutil.Issue(s.opt.JWTSecret, jwtutil.Claims{
		Subject: username,
		Role:    jwtutil.RoleAdmin,
	}, 12*time.Hour)
}
