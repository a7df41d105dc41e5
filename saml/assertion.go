package saml

import (
	"errors"
	"strings"

	"github.com/crewjam/saml"
	ga "github.com/gridpicks/gridauth"
)

const emailNameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"

// AttributeNames lists the attribute names (or friendly names) to read each
// profile field from, first match wins
type AttributeNames struct {
	Email       []string
	FirstName   []string
	LastName    []string
	DisplayName []string
}

func DefaultAttributeNames() AttributeNames {
	return AttributeNames{
		Email: []string{
			"urn:oid:0.9.2342.19200300.100.1.3",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
			"mail", "email",
		},
		FirstName: []string{
			"urn:oid:2.5.4.42",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
			"givenName",
		},
		LastName: []string{
			"urn:oid:2.5.4.4",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
			"sn", "surname",
		},
		DisplayName: []string{
			"urn:oid:2.16.840.1.113730.3.1.241",
			"http://schemas.microsoft.com/identity/claims/displayname",
			"displayName",
		},
	}
}

func (n AttributeNames) orDefault() AttributeNames {
	d := DefaultAttributeNames()
	if len(n.Email) == 0 {
		n.Email = d.Email
	}
	if len(n.FirstName) == 0 {
		n.FirstName = d.FirstName
	}
	if len(n.LastName) == 0 {
		n.LastName = d.LastName
	}
	if len(n.DisplayName) == 0 {
		n.DisplayName = d.DisplayName
	}
	return n
}

// IdentityFromAssertion maps a validated assertion to an external identity.
// The NameID is the subject; emails are only marked verified when trustEmail is set.
func IdentityFromAssertion(provider string, a *saml.Assertion, names AttributeNames, trustEmail bool) (ga.ExternalIdentity, error) {
	if a == nil || a.Subject == nil || a.Subject.NameID == nil || strings.TrimSpace(a.Subject.NameID.Value) == "" {
		return ga.ExternalIdentity{}, errors.New("assertion has no subject name id")
	}
	nameID := a.Subject.NameID
	names = names.orDefault()

	values := map[string]string{}
	for _, stmt := range a.AttributeStatements {
		for _, attr := range stmt.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			v := strings.TrimSpace(attr.Values[0].Value)
			for _, key := range []string{attr.Name, attr.FriendlyName} {
				if _, seen := values[key]; key != "" && !seen {
					values[key] = v
				}
			}
		}
	}
	first := func(keys []string) string {
		for _, k := range keys {
			if v := values[k]; v != "" {
				return v
			}
		}
		return ""
	}

	identity := ga.ExternalIdentity{
		Provider:  provider,
		Subject:   strings.TrimSpace(nameID.Value),
		Email:     first(names.Email),
		FirstName: first(names.FirstName),
		LastName:  first(names.LastName),
		Name:      first(names.DisplayName),
	}
	if identity.Email == "" && nameID.Format == emailNameIDFormat {
		identity.Email = identity.Subject
	}
	identity.EmailVerified = trustEmail && identity.Email != ""
	if identity.Name == "" {
		identity.Name = strings.TrimSpace(identity.FirstName + " " + identity.LastName)
	}
	return identity, nil
}
