package auth

import (
    "errors"
    "net/http/httptest"
    "testing"
    "time"
)

func TestGenerateAndValidateToken(t *testing.T) {
    sec := "secret123"
    sid := "abc"
    exp := time.Now().Add(5 * time.Minute).Unix()

    tok := GenerateAdminToken(sec, sid, exp)

    scope, err := ValidateAdminToken(sec, tok, sid, time.Now(), time.Minute)
    if err != nil { t.Fatalf("validate: %v", err) }
    if scope != sid {
        t.Fatalf("scope mismatch: %s", scope)
    }
}

func TestBadSignature(t *testing.T) {
    sec := "secret123"
    sid := "abc"
    exp := time.Now().Add(5 * time.Minute).Unix()
    tok := GenerateAdminToken(sec, sid, exp)

    _, err := ValidateAdminToken("other-secret", tok, sid, time.Now(), time.Minute)
    if !errors.Is(err, ErrTokenSig) {
        t.Fatalf("expected signature error, got %v", err)
    }

    // flip a char
    if tok[0] == 'A' {
        tok = "B" + tok[1:]
    } else {
        tok = "A" + tok[1:]
    }
    if _, err := ValidateAdminToken(sec, tok, sid, time.Now(), time.Minute); err == nil {
        t.Fatalf("expected error for bad token")
    }
}

func TestExpiryHonoursSkew(t *testing.T) {
    sec := "secret123"
    exp := time.Now().Add(-20 * time.Second).Unix()
    tok := GenerateAdminToken(sec, "abc", exp)

    if _, err := ValidateAdminToken(sec, tok, "abc", time.Now(), 30*time.Second); err != nil {
        t.Fatalf("expected token within skew to pass, got %v", err)
    }
    if _, err := ValidateAdminToken(sec, tok, "abc", time.Now(), 5*time.Second); !errors.Is(err, ErrTokenExp) {
        t.Fatalf("expected expiry error, got %v", err)
    }
}

func TestScope(t *testing.T) {
    sec := "secret123"
    exp := time.Now().Add(time.Minute).Unix()

    if _, err := ValidateAdminToken(sec, GenerateAdminToken(sec, "abc", exp), "xyz", time.Now(), 0); !errors.Is(err, ErrTokenScope) {
        t.Fatalf("expected scope error, got %v", err)
    }
    if _, err := ValidateAdminToken(sec, GenerateAdminToken(sec, AnySession, exp), "xyz", time.Now(), 0); err != nil {
        t.Fatalf("wildcard token should cover any session: %v", err)
    }
}

func TestBearerToken(t *testing.T) {
    r := httptest.NewRequest("POST", "/admin/context", nil)
    if _, err := BearerToken(r); !errors.Is(err, ErrTokenMissing) {
        t.Fatalf("expected missing token, got %v", err)
    }
    r.Header.Set("Authorization", "Bearer xyz")
    tok, err := BearerToken(r)
    if err != nil || tok != "xyz" {
        t.Fatalf("got %q, %v", tok, err)
    }
}
