// Package auth mints and checks the HMAC bearer tokens of the admin API.
package auth

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"
)

// AnySession scopes a token to every session.
const AnySession = "*"

var (
    ErrTokenMissing = errors.New("missing bearer token")
    ErrTokenFormat  = errors.New("invalid token format")
    ErrTokenSig     = errors.New("invalid token signature")
    ErrTokenExp     = errors.New("token expired")
    ErrTokenScope   = errors.New("token not valid for session")
)

// GenerateAdminToken builds a token for scope (a session id or AnySession).
// Format: base64url(scope + "." + exp_unix + "." + hex(hmac_sha256(secret, scope+"."+exp)))
func GenerateAdminToken(secret, scope string, expUnix int64) string {
    msg := scope + "." + strconv.FormatInt(expUnix, 10)
    raw := msg + "." + hex.EncodeToString(sign(secret, msg))
    return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ValidateAdminToken checks the signature and expiry, and that the token
// covers sessionID. It returns the token's scope.
func ValidateAdminToken(secret, token, sessionID string, now time.Time, skew time.Duration) (string, error) {
    b, err := base64.RawURLEncoding.DecodeString(token)
    if err != nil {
        return "", ErrTokenFormat
    }
    // session ids are uuids and never contain '.'
    parts := strings.Split(string(b), ".")
    if len(parts) != 3 {
        return "", ErrTokenFormat
    }
    scope, expStr, sigHex := parts[0], parts[1], parts[2]
    exp, err := strconv.ParseInt(expStr, 10, 64)
    if err != nil {
        return "", ErrTokenFormat
    }
    got, err := hex.DecodeString(sigHex)
    if err != nil {
        return "", ErrTokenFormat
    }
    if !hmac.Equal(sign(secret, scope+"."+expStr), got) {
        return "", ErrTokenSig
    }
    if now.Unix() > exp+int64(skew.Seconds()) {
        return "", ErrTokenExp
    }
    if scope != AnySession && scope != sessionID {
        return "", ErrTokenScope
    }
    return scope, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
    authz := r.Header.Get("Authorization")
    if !strings.HasPrefix(authz, "Bearer ") {
        return "", ErrTokenMissing
    }
    return strings.TrimPrefix(authz, "Bearer "), nil
}

func sign(secret, msg string) []byte {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(msg))
    return mac.Sum(nil)
}
