package crm

import "golang.org/x/oauth2"

// Endpoint is HubSpot's OAuth 2.0 endpoint. Client credentials travel in the
// form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://app.hubspot.com/oauth/authorize",
	TokenURL:  "https://api.hubapi.com/oauth/v1/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes are the scopes needed to read owners, deals and activities.
var DefaultScopes = []string{
	"oauth",
	"crm.objects.owners.read",
	"crm.objects.deals.read",
	"crm.objects.contacts.read",
	"sales-email-read",
}

// NewOAuthConfig returns the OAuth config for the HubSpot app.
func NewOAuthConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       scopes,
	}
}
