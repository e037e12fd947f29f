package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestAllow(t *testing.T) {
	claims := func(subject string, isSuper bool, codes ...int) *Claims {
		return &Claims{
			Permissions:      codes,
			IsSuper:          isSuper,
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		}
	}

	cases := []struct {
		name    string
		claims  *Claims
		ownerID string
		code    int
		want    bool
	}{
		{"owner without permissions", claims("u1", false), "u1", CodeModerator, true},
		{"non-owner without permissions", claims("u1", false), "u2", CodeModerator, false},
		{"super overrides everything", claims("u1", true), "u2", CodeModerator, true},
		{"code present", claims("u1", false, CodeUser, CodeModerator), "", CodeModerator, true},
		{"code absent", claims("u1", false, CodeUser), "", CodeModerator, false},
		{"empty owner never matches", claims("", false), "", CodeModerator, false},
	}

	for _, tc := range cases {
		if got := Allow(tc.claims, tc.ownerID, tc.code); got != tc.want {
			t.Fatalf("%s: Allow = %v, want %v", tc.name, got, tc.want)
		}
	}
}
