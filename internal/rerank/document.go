package rerank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/tier"
)

// BuildDocument flattens a contact into one rerank document. Name, email,
// company and job title are always present; notes, message, location and
// custom details only for tiers with rich rerank fields.
func BuildDocument(c model.Contact, t tier.Name) string {
	parts := make([]string, 0, 8)
	appendPart := func(label, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", label, value))
		}
	}

	appendPart("Name", c.Name)
	appendPart("Email", c.Email)
	appendPart("Company", c.Company)
	appendPart("Title", c.JobTitle)

	if tier.RichRerankFields(t) {
		appendPart("Notes", c.Notes)
		appendPart("Message", c.Message)
		appendPart("Location", c.Location)
		if len(c.Details) > 0 {
			keys := make([]string, 0, len(c.Details))
			for k := range c.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				appendPart(k, c.Details[k])
			}
		}
	}
	return strings.Join(parts, ". ")
}

// BuildDocuments builds one document per contact, index-aligned with the
// input slice.
func BuildDocuments(contacts []model.RankedContact, t tier.Name) []string {
	docs := make([]string, len(contacts))
	for i, rc := range contacts {
		docs[i] = BuildDocument(rc.Contact, t)
	}
	return docs
}
