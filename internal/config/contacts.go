package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Contact is one parsed line of ~/.baresip/contacts, per spec.md §6.
type Contact struct {
	Address string // SIP address, e.g. "Alice <sip:alice@example.com>"
	Presence bool
	Access   string // "allow" | "block" | ""
	Dialog   string // "p2p" | ""
}

func LoadContacts(dir string) ([]Contact, error) {
	path := filepath.Join(dir, "contacts")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var contacts []Contact
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		contacts = append(contacts, parseContact(line))
	}
	return contacts, sc.Err()
}

func parseContact(line string) Contact {
	parts := strings.Split(line, ";")
	c := Contact{Address: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "presence":
			c.Presence = true
		case strings.HasPrefix(p, "access="):
			c.Access = strings.TrimPrefix(p, "access=")
		case strings.HasPrefix(p, "dialog="):
			c.Dialog = strings.TrimPrefix(p, "dialog=")
		}
	}
	return c
}
