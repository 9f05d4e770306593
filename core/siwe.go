package core

import (
	"fmt"
	"strings"
)

// signInMarker terminates the first message line. The line before it
// carries the domain; the line after it carries the address.
const signInMarker = " wants you to sign in with your Polkadot account:"

// SIWEMessage is the canonical line-structured text a wallet signs to
// prove control of an address. Format and ParseSIWEMessage are exact
// inverses: the line order is fixed so any compliant verifier can
// parse the message deterministically.
type SIWEMessage struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        string
	Nonce          string
	IssuedAt       string
	ExpirationTime string
	NotBefore      string
	RequestID      string
	Resources      []string
}

// Format renders the message in canonical form.
func (m *SIWEMessage) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n%s\n\n", m.Domain, signInMarker, m.Address)
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %s\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt)
	if m.ExpirationTime != "" {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime)
	}
	if m.NotBefore != "" {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore)
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}
	return b.String()
}

// ParseSIWEMessage parses a canonical message back into its fields.
func ParseSIWEMessage(raw string) (*SIWEMessage, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 3 || !strings.HasSuffix(lines[0], signInMarker) {
		return nil, fmt.Errorf("siwe: malformed greeting line")
	}
	m := &SIWEMessage{
		Domain:  strings.TrimSuffix(lines[0], signInMarker),
		Address: lines[1],
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("siwe: missing separator after address")
	}

	i := 3
	if i < len(lines) && !strings.HasPrefix(lines[i], "URI: ") {
		m.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, fmt.Errorf("siwe: missing separator after statement")
		}
		i++
	}

	required := []struct {
		prefix string
		field  *string
	}{
		{"URI: ", &m.URI},
		{"Version: ", &m.Version},
		{"Chain ID: ", &m.ChainID},
		{"Nonce: ", &m.Nonce},
		{"Issued At: ", &m.IssuedAt},
	}
	for _, f := range required {
		if i >= len(lines) || !strings.HasPrefix(lines[i], f.prefix) {
			return nil, fmt.Errorf("siwe: missing %q line", strings.TrimSpace(f.prefix))
		}
		*f.field = strings.TrimPrefix(lines[i], f.prefix)
		i++
	}

	optional := []struct {
		prefix string
		field  *string
	}{
		{"Expiration Time: ", &m.ExpirationTime},
		{"Not Before: ", &m.NotBefore},
		{"Request ID: ", &m.RequestID},
	}
	for _, f := range optional {
		if i < len(lines) && strings.HasPrefix(lines[i], f.prefix) {
			*f.field = strings.TrimPrefix(lines[i], f.prefix)
			i++
		}
	}

	if i < len(lines) && lines[i] == "Resources:" {
		i++
		for ; i < len(lines); i++ {
			if !strings.HasPrefix(lines[i], "- ") {
				return nil, fmt.Errorf("siwe: malformed resource line")
			}
			m.Resources = append(m.Resources, strings.TrimPrefix(lines[i], "- "))
		}
	}
	if i != len(lines) {
		return nil, fmt.Errorf("siwe: trailing content after message body")
	}
	return m, nil
}
