package google

import (
	"context"

	"google.golang.org/api/people/v1"

	"github.com/lewisedginton/organizer/internal/tools"
)

// Contacts implements tools.Contacts.
type Contacts struct {
	svc *people.Service
}

// Create adds a contact and returns its resource name.
func (c *Contacts) Create(ctx context.Context, ct tools.Contact) (string, error) {
	person := &people.Person{
		Names: []*people.Name{{GivenName: ct.GivenName, FamilyName: ct.FamilyName}},
	}
	if ct.PhoneNumber != "" {
		person.PhoneNumbers = []*people.PhoneNumber{{Value: ct.PhoneNumber}}
	}
	if ct.Email != "" {
		person.EmailAddresses = []*people.EmailAddress{{Value: ct.Email}}
	}

	created, err := c.svc.People.CreateContact(person).Context(ctx).Do()
	if err != nil {
		return "", classify("create contact", err)
	}
	return created.ResourceName, nil
}
