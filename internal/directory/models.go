package directory

// Profile is the public part of a directory account.
type Profile struct {
	ID       string `json:"id" cbor:"id"`
	Username string `json:"username" cbor:"username"`
	ImageURL string `json:"image_url" cbor:"image_url"`
}

type externalAccount struct {
	Username string `json:"username"`
}

type user struct {
	ID               string            `json:"id"`
	Username         string            `json:"username"`
	ImageURL         string            `json:"image_url"`
	ProfileImageURL  string            `json:"profile_image_url"`
	ExternalAccounts []externalAccount `json:"external_accounts"`
}

// profile keeps only public fields. Accounts created through an OAuth
// provider may lack a username; the provider's handle is used instead.
func (u user) profile() Profile {
	p := Profile{ID: u.ID, Username: u.Username, ImageURL: u.ImageURL}
	if p.ImageURL == "" {
		p.ImageURL = u.ProfileImageURL
	}
	if p.Username == "" {
		for _, acc := range u.ExternalAccounts {
			if acc.Username != "" {
				p.Username = acc.Username
				break
			}
		}
	}
	return p
}
