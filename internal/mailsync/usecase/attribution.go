package usecase

import (
	"regexp"
	"strings"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// attributionHeaders in priority order
var attributionHeaders = []string{"Delivered-To", "To", "Cc"}

var addressPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// AttributionResolver maps a message to the agent mailbox it was addressed to
type AttributionResolver struct {
	agents map[string]struct{}
}

func NewAttributionResolver(agentAddresses []string) *AttributionResolver {
	agents := make(map[string]struct{}, len(agentAddresses))
	for _, a := range agentAddresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents[a] = struct{}{}
		}
	}
	return &AttributionResolver{agents: agents}
}

// Resolve returns the first allow-listed address found in Delivered-To, then
// To, then Cc, or "" when none matches.
func (r *AttributionResolver) Resolve(headers domain.HeaderList) string {
	if len(r.agents) == 0 {
		return ""
	}
	for _, name := range attributionHeaders {
		for _, value := range headers.Values(name) {
			for _, addr := range extractAddresses(value) {
				if _, ok := r.agents[addr]; ok {
					return addr
				}
			}
		}
	}
	return ""
}

// extractAddresses returns lower-cased addresses in header order. Values that
// do not parse as an RFC 5322 address list fall back to a pattern scan.
func extractAddresses(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, strings.ToLower(a.Address))
		}
		return out
	}

	matches := addressPattern.FindAllString(value, -1)
	for i, m := range matches {
		matches[i] = strings.ToLower(m)
	}
	return matches
}
