package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCookieHeader(t *testing.T) {
	t.Parallel()

	got := CookieHeader([]*http.Cookie{
		{Name: "sid", Value: "abc"},
		nil,
		{Name: "", Value: "ignored"},
		{Name: "lang", Value: "ko"},
	})
	require.Equal(t, "sid=abc; lang=ko", got)
	require.Empty(t, CookieHeader(nil))
}

func TestResponseCookies(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Add("Set-Cookie", "sid=abc; Path=/")
	h.Add("Set-Cookie", "lang=ko")
	cookies := ResponseCookies(h)
	require.Len(t, cookies, 2)
	require.Equal(t, "sid", cookies[0].Name)
	require.Equal(t, "abc", cookies[0].Value)
	require.Nil(t, ResponseCookies(nil))
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &StatusError{URL: "https://board.example/list", StatusCode: 503}
	require.EqualError(t, err, "fetch https://board.example/list: unexpected status 503")
}
