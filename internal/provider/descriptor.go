package provider

import (
	"strings"

	"github.com/socialdeck/dashboard-server-go/internal/model"
)

// Descriptor captures everything the authorization flow needs to know about
// one provider. Adding a provider means adding a descriptor and a Publisher,
// not another copy of the flow.
type Descriptor struct {
	Name         string
	AuthorizeURL string
	TokenURL     string
	IdentityURL  string
	Scopes       []string
	// ScopeSeparator joins Scopes in the authorize URL ("," for Instagram).
	ScopeSeparator string
	// PublishScope gates dispatch; empty means the provider has no
	// publish-specific scope to check.
	PublishScope string
	UsesPKCE     bool
	// UsesOAuth1 marks providers whose publish calls are OAuth 1.0a signed
	// rather than bearer-authenticated.
	UsesOAuth1 bool
}

func (d Descriptor) ScopeParam() string {
	sep := d.ScopeSeparator
	if sep == "" {
		sep = " "
	}
	return strings.Join(d.Scopes, sep)
}

type Registry struct {
	descriptors map[string]Descriptor
}

func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.descriptors[d.Name] = d
	}
	return r
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry returns the production provider set. Endpoint URLs are
// provider-owned contracts; tests swap in descriptors pointing elsewhere.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Descriptor{
			Name:         model.ProviderTwitter,
			AuthorizeURL: "https://twitter.com/i/oauth2/authorize",
			TokenURL:     "https://api.twitter.com/2/oauth2/token",
			IdentityURL:  "https://api.twitter.com/2/users/me?user.fields=username,profile_image_url",
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			PublishScope: "tweet.write",
			UsesPKCE:     true,
			UsesOAuth1:   true,
		},
		Descriptor{
			Name:         model.ProviderLinkedIn,
			AuthorizeURL: "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
			IdentityURL:  "https://www.linkedin.com/oauth/v2/userinfo",
			Scopes:       []string{"openid", "profile", "email", "w_member_social"},
			PublishScope: "w_member_social",
		},
		Descriptor{
			Name:           model.ProviderInstagram,
			AuthorizeURL:   "https://api.instagram.com/oauth/authorize",
			TokenURL:       "https://api.instagram.com/oauth/access_token",
			IdentityURL:    "https://graph.instagram.com/me?fields=id,username",
			Scopes:         []string{"user_profile", "user_media"},
			ScopeSeparator: ",",
		},
	)
}
