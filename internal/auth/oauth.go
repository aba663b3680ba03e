package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// githubUserURL is the endpoint Exchange calls once it holds a token.
const githubUserURL = "https://api.github.com/user"

// GitHubUser is the slice of GitHub's /user response that waveroom keeps.
// GitHub sends dozens of fields; these four are what the signup upsert
// needs — the numeric ID keys the account, Login seeds the handle, and
// the avatar becomes the profile picture.
//
// API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID        int64  `json:"id"`         // stable numeric ID — the only safe upsert key
	Login     string `json:"login"`      // username, seeds the waveroom handle on first login
	Email     string `json:"email"`      // empty when hidden in the user's GitHub settings
	AvatarURL string `json:"avatar_url"` // becomes the waveroom avatar
}

// GitHubProvider runs the Authorization Code flow against GitHub on top of
// golang.org/x/oauth2.
//
// THE FLOW, FROM WAVEROOM'S SIDE:
//  1. /auth/github/login redirects the browser to GitHub with our ClientID.
//  2. The user approves on GitHub's consent page.
//  3. GitHub redirects to /auth/github/callback carrying a one-shot code.
//  4. Exchange trades the code for an access token and fetches the profile.
//  5. The auth service upserts the account by GitHubUser.ID and sets the
//     session cookie.
//
// The code-for-token exchange is server-to-server and uses ClientSecret,
// so the access token never reaches the browser. waveroom discards the
// token right after the profile fetch — it is never stored.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider builds a provider from an OAuth App's credentials
// (github.com/settings/developers → "OAuth Apps").
//
// callbackURL must byte-for-byte match the "Authorization callback URL"
// registered with GitHub, e.g. "http://localhost:8080/auth/github/callback" —
// a trailing slash difference is enough for GitHub to refuse the redirect.
//
// Requested scopes: "read:user" for the public profile and "user:email"
// so the account row gets an email even when the profile hides it.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

// AuthURL returns the GitHub consent-page URL for one login attempt.
//
// state is a random value the login handler also drops into a short-lived
// cookie. The callback compares the echoed state against that cookie and
// rejects a mismatch — otherwise an attacker could complete an OAuth flow
// in the victim's browser and attach the victim's session to the
// attacker's GitHub account (login CSRF).
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange finishes the flow: the callback's one-shot code goes in, a
// GitHub profile comes out. The caller never sees the intermediate access
// token.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// config.Client wraps an *http.Client that injects the Bearer header
	// on every request, so the profile fetch is a plain GET.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(githubUserURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching GitHub profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub profile: %w", err)
	}

	// A zero ID would upsert every broken response onto the same account.
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	return &ghUser, nil
}
