package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResolveLocale(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		header string
		value  string
		want   string
	}{
		{header: "X-Locale", value: "zh-CN", want: LocaleZH},
		{header: "Accept-Language", value: "zh-TW,zh;q=0.9", want: LocaleTW},
		{header: "Accept-Language", value: "fr-FR, en;q=0.8", want: LocaleEN},
		{header: "Accept-Language", value: "", want: DefaultLocale},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)
		if tc.value != "" {
			c.Request.Header.Set(tc.header, tc.value)
		}
		if got := ResolveLocale(c); got != tc.want {
			t.Fatalf("%s=%q want %s got %s", tc.header, tc.value, tc.want, got)
		}
	}
}

func TestTranslateFallback(t *testing.T) {
	if got := T(LocaleTW, "error.program_not_found"); got != "loyalty program not found" {
		t.Fatalf("expected english fallback, got %s", got)
	}
	if got := T(LocaleZH, "error.unknown_key"); got != "error.unknown_key" {
		t.Fatalf("expected key fallback, got %s", got)
	}
	if got := Sprintf(LocaleEN, "error.rate_limited", 3); got != "too many requests, retry in 3 seconds" {
		t.Fatalf("unexpected formatted message: %s", got)
	}
}
