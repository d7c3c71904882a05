package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = OAuth1Credentials{
	ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
	ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
	Token:          "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
	TokenSecret:    "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
}

func TestSignOAuth1Request(t *testing.T) {
	t.Run("two calls produce different signatures", func(t *testing.T) {
		url := "https://api.twitter.com/2/tweets"
		a, err := SignOAuth1Request(testCreds, "POST", url, nil)
		require.NoError(t, err)
		b, err := SignOAuth1Request(testCreds, "POST", url, nil)
		require.NoError(t, err)
		assert.NotEqual(t, a, b, "nonce and timestamp must be fresh per call")
	})

	t.Run("header contains all oauth parameters", func(t *testing.T) {
		header, err := SignOAuth1Request(testCreds, "POST", "https://api.twitter.com/2/tweets", nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(header, "OAuth "))
		for _, k := range []string{
			"oauth_consumer_key", "oauth_nonce", "oauth_signature_method",
			"oauth_timestamp", "oauth_token", "oauth_version", "oauth_signature",
		} {
			assert.Contains(t, header, k+`="`)
		}
		assert.Contains(t, header, `oauth_signature_method="HMAC-SHA1"`)
		assert.Contains(t, header, `oauth_version="1.0"`)
	})

	t.Run("two-legged credentials omit oauth_token entirely", func(t *testing.T) {
		twoLegged := OAuth1Credentials{
			ConsumerKey:    testCreds.ConsumerKey,
			ConsumerSecret: testCreds.ConsumerSecret,
		}
		header, err := SignOAuth1Request(twoLegged, "POST", "https://api.twitter.com/2/tweets", nil)
		require.NoError(t, err)
		assert.NotContains(t, header, "oauth_token=")

		a := signOAuth1(twoLegged, "POST", "https://api.twitter.com/2/tweets", nil, "nonce", "1318622958")
		b := signOAuth1(testCreds, "POST", "https://api.twitter.com/2/tweets", nil, "nonce", "1318622958")
		assert.NotEqual(t, a, b, "an absent token must not sign like an empty one")
	})
}

func TestSignOAuth1Deterministic(t *testing.T) {
	t.Run("same nonce, timestamp and params reproduce the same signature", func(t *testing.T) {
		params := map[string]string{"status": "hello world", "include_entities": "true"}
		a := signOAuth1(testCreds, "post", "https://api.twitter.com/1.1/statuses/update.json", params, "nonce123", "1318622958")
		b := signOAuth1(testCreds, "POST", "https://api.twitter.com/1.1/statuses/update.json", params, "nonce123", "1318622958")
		assert.Equal(t, a, b, "method case and map iteration order must not affect the signature")
	})

	t.Run("different nonce changes the signature", func(t *testing.T) {
		a := signOAuth1(testCreds, "POST", "https://api.twitter.com/2/tweets", nil, "nonce-a", "1318622958")
		b := signOAuth1(testCreds, "POST", "https://api.twitter.com/2/tweets", nil, "nonce-b", "1318622958")
		assert.NotEqual(t, a, b)
	})

	t.Run("different timestamp changes the signature", func(t *testing.T) {
		a := signOAuth1(testCreds, "POST", "https://api.twitter.com/2/tweets", nil, "nonce", "1318622958")
		b := signOAuth1(testCreds, "POST", "https://api.twitter.com/2/tweets", nil, "nonce", "1318622959")
		assert.NotEqual(t, a, b)
	})

	t.Run("request params participate in the signature", func(t *testing.T) {
		a := signOAuth1(testCreds, "GET", "https://upload.twitter.com/1.1/media/upload.json",
			map[string]string{"command": "STATUS", "media_id": "1"}, "nonce", "1318622958")
		b := signOAuth1(testCreds, "GET", "https://upload.twitter.com/1.1/media/upload.json",
			map[string]string{"command": "STATUS", "media_id": "2"}, "nonce", "1318622958")
		assert.NotEqual(t, a, b)
	})
}

func TestPercentEncode(t *testing.T) {
	t.Run("passes unreserved characters through", func(t *testing.T) {
		assert.Equal(t, "Abc123-._~", percentEncode("Abc123-._~"))
	})

	t.Run("encodes reserved characters uppercase", func(t *testing.T) {
		assert.Equal(t, "Ladies%20%2B%20Gentlemen", percentEncode("Ladies + Gentlemen"))
		assert.Equal(t, "An%20encoded%20string%21", percentEncode("An encoded string!"))
		assert.Equal(t, "Dogs%2C%20Cats%20%26%20Mice", percentEncode("Dogs, Cats & Mice"))
	})

	t.Run("encodes characters QueryEscape leaves alone", func(t *testing.T) {
		// '!', '\'', '(', ')', '*' must be encoded per RFC 3986
		assert.Equal(t, "%21%27%28%29%2A", percentEncode("!'()*"))
	})
}

func TestCredentialsComplete(t *testing.T) {
	assert.True(t, testCreds.Complete())
	assert.False(t, OAuth1Credentials{ConsumerKey: "only"}.Complete())
}

func TestGenerateNonce(t *testing.T) {
	t.Run("is alphanumeric", func(t *testing.T) {
		nonce, err := generateNonce()
		require.NoError(t, err)
		require.NotEmpty(t, nonce)
		for _, c := range nonce {
			ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
			assert.True(t, ok, "nonce contains %q", c)
		}
	})

	t.Run("is collision resistant", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			nonce, err := generateNonce()
			require.NoError(t, err)
			assert.False(t, seen[nonce])
			seen[nonce] = true
		}
	})
}
