package validation

import (
	"errors"
	"fmt"
	"strings"

	"chatledger/pkg/models"
)

// Rules holds the configurable limits applied to incoming messages.
// Zero values select the defaults.
type Rules struct {
	// MaxBodyLen bounds the body length in bytes; 0 means unlimited.
	MaxBodyLen int
	// MaxAttachments bounds attachments per message; 0 selects
	// models.MaxAttachments. The store-enforced ceiling is always
	// models.MaxAttachments regardless of configuration.
	MaxAttachments int
}

var rules Rules

func SetRules(r Rules) { rules = r }

// ValidateMessage checks a message draft against the configured rules
// and the fixed schema constraints. It is called on every store append,
// so over-limit writes are rejected even when they bypass the API.
func ValidateMessage(m models.Message) error {
	var errs []string
	if !m.Sender.Valid() {
		errs = append(errs, fmt.Sprintf("invalid sender: %q", m.Sender))
	}
	if strings.TrimSpace(m.Body) == "" && len(m.Attachments) == 0 {
		errs = append(errs, "body is required when no attachments are present")
	}
	maxAtt := rules.MaxAttachments
	if maxAtt <= 0 || maxAtt > models.MaxAttachments {
		maxAtt = models.MaxAttachments
	}
	if len(m.Attachments) > maxAtt {
		errs = append(errs, fmt.Sprintf("too many attachments: %d > %d", len(m.Attachments), maxAtt))
	}
	for i, a := range m.Attachments {
		if len(a.Payload) == 0 {
			errs = append(errs, fmt.Sprintf("attachment %d has empty payload", i))
		}
	}
	if rules.MaxBodyLen > 0 && len(m.Body) > rules.MaxBodyLen {
		errs = append(errs, fmt.Sprintf("max body length exceeded: %d > %d", len(m.Body), rules.MaxBodyLen))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
